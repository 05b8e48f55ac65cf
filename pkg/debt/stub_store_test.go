package debt

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

type stubStore struct {
	debts        map[string]Debt
	nextSequence int
	createError  error
	updateError  error
	getError     error
	listError    error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{debts: map[string]Debt{}}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetDebt(ctx context.Context, debtID string) (Debt, error) {
	return store.GetDebtForUpdate(ctx, debtID)
}

func (store *stubStore) GetDebtForUpdate(_ context.Context, debtID string) (Debt, error) {
	if store.getError != nil {
		return Debt{}, store.getError
	}
	debt, found := store.debts[debtID]
	if !found {
		return Debt{}, fmt.Errorf("%w: %s", ErrDebtNotFound, debtID)
	}
	return debt, nil
}

func (store *stubStore) FindActiveDebt(_ context.Context, userID string) (Debt, bool, error) {
	for _, debt := range store.debts {
		if debt.UserID == userID && !debt.Status.IsTerminal() {
			return debt, true, nil
		}
	}
	return Debt{}, false, nil
}

func (store *stubStore) ListOverdueDebts(_ context.Context, atUnixUTC int64) ([]Debt, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	var overdue []Debt
	for _, debt := range store.debts {
		if !debt.Status.IsTerminal() && debt.DueDateUnixUTC < atUnixUTC {
			overdue = append(overdue, debt)
		}
	}
	return overdue, nil
}

func (store *stubStore) CreateDebt(_ context.Context, debt Debt) (Debt, error) {
	if store.createError != nil {
		return Debt{}, store.createError
	}
	store.nextSequence++
	debt.DebtID = fmt.Sprintf("debt-%d", store.nextSequence)
	store.debts[debt.DebtID] = debt
	return debt, nil
}

func (store *stubStore) UpdateDebt(_ context.Context, debt Debt) error {
	if store.updateError != nil {
		return store.updateError
	}
	if _, found := store.debts[debt.DebtID]; !found {
		return fmt.Errorf("%w: %s", ErrDebtNotFound, debt.DebtID)
	}
	store.debts[debt.DebtID] = debt
	return nil
}

func (store *stubStore) activeDebtCount(userID string) int {
	count := 0
	for _, debt := range store.debts {
		if debt.UserID == userID && !debt.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// stubBalances returns a fixed balance per user, adjustable between calls.
type stubBalances struct {
	balances map[string]decimal.Decimal
	err      error
}

func newStubBalances(test *testing.T) *stubBalances {
	test.Helper()
	return &stubBalances{balances: map[string]decimal.Decimal{}}
}

func (source *stubBalances) ComputeBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	if source.err != nil {
		return decimal.Zero, source.err
	}
	return source.balances[userID], nil
}

// testClock is a mutable clock shared with the service under test.
type testClock struct {
	nowUnixUTC int64
}

func (clock *testClock) now() int64 {
	return clock.nowUnixUTC
}

func (clock *testClock) advanceDays(days int64) {
	clock.nowUnixUTC += days * secondsPerDay
}

func mustNewService(test *testing.T, store Store, balances BalanceSource, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, balances, clock.now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}
