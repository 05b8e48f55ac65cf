package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/ledger"
)

// stubDebtStore implements debt.Store in memory.
type stubDebtStore struct {
	debts        map[string]debt.Debt
	nextSequence int
}

func (store *stubDebtStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore debt.Store) error) error {
	return fn(ctx, store)
}

func (store *stubDebtStore) GetDebt(ctx context.Context, debtID string) (debt.Debt, error) {
	return store.GetDebtForUpdate(ctx, debtID)
}

func (store *stubDebtStore) GetDebtForUpdate(_ context.Context, debtID string) (debt.Debt, error) {
	record, found := store.debts[debtID]
	if !found {
		return debt.Debt{}, fmt.Errorf("%w: %s", debt.ErrDebtNotFound, debtID)
	}
	return record, nil
}

func (store *stubDebtStore) FindActiveDebt(_ context.Context, userID string) (debt.Debt, bool, error) {
	for _, record := range store.debts {
		if record.UserID == userID && !record.Status.IsTerminal() {
			return record, true, nil
		}
	}
	return debt.Debt{}, false, nil
}

func (store *stubDebtStore) ListOverdueDebts(_ context.Context, atUnixUTC int64) ([]debt.Debt, error) {
	var overdue []debt.Debt
	for _, record := range store.debts {
		if !record.Status.IsTerminal() && record.DueDateUnixUTC < atUnixUTC {
			overdue = append(overdue, record)
		}
	}
	return overdue, nil
}

func (store *stubDebtStore) CreateDebt(_ context.Context, record debt.Debt) (debt.Debt, error) {
	store.nextSequence++
	record.DebtID = fmt.Sprintf("debt-%d", store.nextSequence)
	store.debts[record.DebtID] = record
	return record, nil
}

func (store *stubDebtStore) UpdateDebt(_ context.Context, record debt.Debt) error {
	if _, found := store.debts[record.DebtID]; !found {
		return fmt.Errorf("%w: %s", debt.ErrDebtNotFound, record.DebtID)
	}
	store.debts[record.DebtID] = record
	return nil
}

// stubLedgerStore implements ledger.Store in memory.
type stubLedgerStore struct {
	transactions []ledger.Transaction
}

func (store *stubLedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (store *stubLedgerStore) InsertTransaction(_ context.Context, transaction ledger.Transaction) (ledger.Transaction, error) {
	transaction.TransactionID = fmt.Sprintf("txn-%d", len(store.transactions)+1)
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubLedgerStore) SumCompleted(_ context.Context, userID ledger.UserID, types []ledger.TransactionType) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, transaction := range store.transactions {
		if transaction.UserID != userID || transaction.Status != ledger.StatusCompleted {
			continue
		}
		for _, transactionType := range types {
			if transaction.Type == transactionType {
				total = total.Add(transaction.Amount.Decimal())
				break
			}
		}
	}
	return total, nil
}

func (store *stubLedgerStore) ListTransactions(_ context.Context, userID ledger.UserID, _ int64, _ int) ([]ledger.Transaction, error) {
	var listed []ledger.Transaction
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			listed = append(listed, transaction)
		}
	}
	return listed, nil
}

// stubStore implements reconcile.Store over the debt and ledger stubs.
type stubStore struct {
	debtStore    *stubDebtStore
	ledgerStore  *stubLedgerStore
	payments     map[string]Payment
	fines        map[string]Fine
	audits       []AuditRecord
	nextSequence int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		debtStore:   &stubDebtStore{debts: map[string]debt.Debt{}},
		ledgerStore: &stubLedgerStore{},
		payments:    map[string]Payment{},
		fines:       map[string]Fine{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) DebtStore() debt.Store {
	return store.debtStore
}

func (store *stubStore) LedgerStore() ledger.Store {
	return store.ledgerStore
}

func (store *stubStore) CreatePayment(_ context.Context, payment Payment) (Payment, error) {
	store.nextSequence++
	payment.PaymentID = fmt.Sprintf("pay-%d", store.nextSequence)
	store.payments[payment.PaymentID] = payment
	return payment, nil
}

func (store *stubStore) GetPaymentByTransactionID(_ context.Context, transactionID string) (Payment, bool, error) {
	for _, payment := range store.payments {
		if payment.TransactionID == transactionID {
			return payment, true, nil
		}
	}
	return Payment{}, false, nil
}

func (store *stubStore) UpdatePayment(_ context.Context, payment Payment) error {
	if _, found := store.payments[payment.PaymentID]; !found {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, payment.PaymentID)
	}
	store.payments[payment.PaymentID] = payment
	return nil
}

func (store *stubStore) DeletePayment(_ context.Context, paymentID string) error {
	delete(store.payments, paymentID)
	return nil
}

func (store *stubStore) GetFine(_ context.Context, fineID string) (Fine, error) {
	fine, found := store.fines[fineID]
	if !found {
		return Fine{}, fmt.Errorf("%w: %s", ErrFineNotFound, fineID)
	}
	return fine, nil
}

func (store *stubStore) GetFineForUpdate(ctx context.Context, fineID string) (Fine, error) {
	return store.GetFine(ctx, fineID)
}

func (store *stubStore) MarkFinePaid(_ context.Context, fineID string, _ int64) error {
	fine, found := store.fines[fineID]
	if !found {
		return fmt.Errorf("%w: %s", ErrFineNotFound, fineID)
	}
	fine.Status = FinePaid
	store.fines[fineID] = fine
	return nil
}

func (store *stubStore) InsertAuditRecord(_ context.Context, record AuditRecord) error {
	store.audits = append(store.audits, record)
	return nil
}

// stubGateway scripts session init and validation responses.
type stubGateway struct {
	initError     error
	initSessions  []SessionRequest
	verifyError   error
	verifyInvalid bool
	verifyCalls   []string
}

func (gateway *stubGateway) InitSession(_ context.Context, request SessionRequest) (Session, error) {
	gateway.initSessions = append(gateway.initSessions, request)
	if gateway.initError != nil {
		return Session{}, gateway.initError
	}
	return Session{GatewayURL: "https://gateway.example/pay", SessionKey: "session-key"}, nil
}

func (gateway *stubGateway) Verify(_ context.Context, validationID string) (Verification, error) {
	gateway.verifyCalls = append(gateway.verifyCalls, validationID)
	if gateway.verifyError != nil {
		return Verification{}, gateway.verifyError
	}
	return Verification{Valid: !gateway.verifyInvalid}, nil
}

// recorderNotifier records notifications and optionally fails.
type recorderNotifier struct {
	err           error
	notifications []string
}

func (notifier *recorderNotifier) Notify(_ context.Context, userID string, kind string, _ map[string]string) error {
	notifier.notifications = append(notifier.notifications, userID+":"+kind)
	return notifier.err
}

type fixtures struct {
	store    *stubStore
	gateway  *stubGateway
	notifier *recorderNotifier
	debts    *debt.Service
	service  *Service
}

func newFixtures(test *testing.T) *fixtures {
	test.Helper()
	store := newStubStore(test)
	gateway := &stubGateway{}
	notifier := &recorderNotifier{}
	clock := func() int64 { return int64(1700000000) }
	balances := balanceFunc(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, nil
	})
	debtService, err := debt.NewService(store.debtStore, balances, clock)
	if err != nil {
		test.Fatalf("debt service init: %v", err)
	}
	service, err := NewService(store, debtService, gateway, notifier, clock, WithNonce(func() uint32 { return 42 }))
	if err != nil {
		test.Fatalf("reconcile service init: %v", err)
	}
	return &fixtures{store: store, gateway: gateway, notifier: notifier, debts: debtService, service: service}
}

type balanceFunc func(ctx context.Context, userID string) (decimal.Decimal, error)

func (fn balanceFunc) ComputeBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return fn(ctx, userID)
}

func (fixture *fixtures) seedDebt(test *testing.T, userID string, amount string) debt.Debt {
	test.Helper()
	created, err := fixture.debts.CreateDebt(context.Background(), userID, decimal.RequireFromString(amount).Neg())
	if err != nil {
		test.Fatalf("seed debt: %v", err)
	}
	return created
}
