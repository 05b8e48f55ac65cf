package httpserver

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/gems"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

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

func (store *stubLedgerStore) ListTransactions(_ context.Context, userID ledger.UserID, _ int64, limit int) ([]ledger.Transaction, error) {
	var listed []ledger.Transaction
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			listed = append(listed, transaction)
		}
		if len(listed) == limit {
			break
		}
	}
	return listed, nil
}

type stubGemStore struct {
	accounts map[string]gems.GemAccount
}

func (store *stubGemStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore gems.Store) error) error {
	return fn(ctx, store)
}

func (store *stubGemStore) GetGemAccountForUpdate(_ context.Context, citizenID gems.CitizenID) (gems.GemAccount, bool, error) {
	account, found := store.accounts[citizenID.String()]
	return account, found, nil
}

func (store *stubGemStore) UpsertGemAccount(_ context.Context, account gems.GemAccount) (gems.GemAccount, error) {
	store.accounts[account.CitizenID.String()] = account
	return account, nil
}

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

type stubReconcileStore struct {
	debtStore    *stubDebtStore
	ledgerStore  *stubLedgerStore
	payments     map[string]reconcile.Payment
	fines        map[string]reconcile.Fine
	audits       []reconcile.AuditRecord
	nextSequence int
}

func (store *stubReconcileStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reconcile.Store) error) error {
	return fn(ctx, store)
}

func (store *stubReconcileStore) DebtStore() debt.Store {
	return store.debtStore
}

func (store *stubReconcileStore) LedgerStore() ledger.Store {
	return store.ledgerStore
}

func (store *stubReconcileStore) CreatePayment(_ context.Context, payment reconcile.Payment) (reconcile.Payment, error) {
	store.nextSequence++
	payment.PaymentID = fmt.Sprintf("pay-%d", store.nextSequence)
	store.payments[payment.PaymentID] = payment
	return payment, nil
}

func (store *stubReconcileStore) GetPaymentByTransactionID(_ context.Context, transactionID string) (reconcile.Payment, bool, error) {
	for _, payment := range store.payments {
		if payment.TransactionID == transactionID {
			return payment, true, nil
		}
	}
	return reconcile.Payment{}, false, nil
}

func (store *stubReconcileStore) UpdatePayment(_ context.Context, payment reconcile.Payment) error {
	if _, found := store.payments[payment.PaymentID]; !found {
		return fmt.Errorf("%w: %s", reconcile.ErrPaymentNotFound, payment.PaymentID)
	}
	store.payments[payment.PaymentID] = payment
	return nil
}

func (store *stubReconcileStore) DeletePayment(_ context.Context, paymentID string) error {
	delete(store.payments, paymentID)
	return nil
}

func (store *stubReconcileStore) GetFine(_ context.Context, fineID string) (reconcile.Fine, error) {
	fine, found := store.fines[fineID]
	if !found {
		return reconcile.Fine{}, fmt.Errorf("%w: %s", reconcile.ErrFineNotFound, fineID)
	}
	return fine, nil
}

func (store *stubReconcileStore) GetFineForUpdate(ctx context.Context, fineID string) (reconcile.Fine, error) {
	return store.GetFine(ctx, fineID)
}

func (store *stubReconcileStore) MarkFinePaid(_ context.Context, fineID string, _ int64) error {
	fine, found := store.fines[fineID]
	if !found {
		return fmt.Errorf("%w: %s", reconcile.ErrFineNotFound, fineID)
	}
	fine.Status = reconcile.FinePaid
	store.fines[fineID] = fine
	return nil
}

func (store *stubReconcileStore) InsertAuditRecord(_ context.Context, record reconcile.AuditRecord) error {
	store.audits = append(store.audits, record)
	return nil
}

type stubGateway struct {
	initError     error
	verifyInvalid bool
}

func (gateway *stubGateway) InitSession(_ context.Context, request reconcile.SessionRequest) (reconcile.Session, error) {
	if gateway.initError != nil {
		return reconcile.Session{}, gateway.initError
	}
	return reconcile.Session{GatewayURL: "https://gateway.example/pay", SessionKey: "session-key"}, nil
}

func (gateway *stubGateway) Verify(_ context.Context, _ string) (reconcile.Verification, error) {
	return reconcile.Verification{Valid: !gateway.verifyInvalid}, nil
}

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, string, string, map[string]string) error {
	return nil
}

type balanceFunc func(ctx context.Context, userID string) (decimal.Decimal, error)

func (fn balanceFunc) ComputeBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return fn(ctx, userID)
}

const testEpochUnixUTC = int64(1700000000)

type fixtures struct {
	ledgerStore    *stubLedgerStore
	gemStore       *stubGemStore
	debtStore      *stubDebtStore
	reconcileStore *stubReconcileStore
	gateway        *stubGateway
	server         *Server
}

func newFixtures(test *testing.T) *fixtures {
	test.Helper()
	ledgerStore := &stubLedgerStore{}
	gemStore := &stubGemStore{accounts: map[string]gems.GemAccount{}}
	debtStore := &stubDebtStore{debts: map[string]debt.Debt{}}
	reconcileStore := &stubReconcileStore{
		debtStore:   debtStore,
		ledgerStore: ledgerStore,
		payments:    map[string]reconcile.Payment{},
		fines:       map[string]reconcile.Fine{},
	}
	gateway := &stubGateway{}
	clock := func() int64 { return testEpochUnixUTC }

	ledgerService, err := ledger.NewService(ledgerStore, clock)
	if err != nil {
		test.Fatalf("ledger service init: %v", err)
	}
	gemService, err := gems.NewService(gemStore, clock)
	if err != nil {
		test.Fatalf("gem service init: %v", err)
	}
	balances := balanceFunc(func(ctx context.Context, rawUserID string) (decimal.Decimal, error) {
		userID, idErr := ledger.NewUserID(rawUserID)
		if idErr != nil {
			return decimal.Zero, idErr
		}
		return ledgerService.ComputeBalance(ctx, userID)
	})
	debtService, err := debt.NewService(debtStore, balances, clock)
	if err != nil {
		test.Fatalf("debt service init: %v", err)
	}
	reconcileService, err := reconcile.NewService(reconcileStore, debtService, gateway, silentNotifier{}, clock)
	if err != nil {
		test.Fatalf("reconcile service init: %v", err)
	}

	server, err := New(Config{ListenAddr: ":0"}, Services{
		Ledger:    ledgerService,
		Gems:      gemService,
		Debts:     debtService,
		Reconcile: reconcileService,
	}, nil)
	if err != nil {
		test.Fatalf("server init: %v", err)
	}
	return &fixtures{
		ledgerStore:    ledgerStore,
		gemStore:       gemStore,
		debtStore:      debtStore,
		reconcileStore: reconcileStore,
		gateway:        gateway,
		server:         server,
	}
}
