package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/ledger"
)

// PaymentStatus enumerates payment record lifecycle states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// FineStatus enumerates the fine states this adapter cares about.
type FineStatus string

const (
	FineUnpaid FineStatus = "UNPAID"
	FinePaid   FineStatus = "PAID"
)

// Payment is the PENDING placeholder minted before a fine redirect and the
// unit of idempotency for gateway callbacks.
type Payment struct {
	PaymentID     string
	UserID        string
	FineID        *string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        PaymentStatus
	TransactionID string
	PaidAtUnixUTC int64
}

// Fine is the slice of the fine record settlement needs: amount and status.
type Fine struct {
	FineID string
	UserID string
	Amount decimal.Decimal
	Status FineStatus
}

// CallbackPayload carries the fields consumed from a gateway callback.
// The stated status is never trusted; success is re-verified by ValID.
type CallbackPayload struct {
	TransactionID string
	ValidationID  string
	Amount        string
	BankReference string
}

// SessionRequest is handed to the gateway's session-init primitive.
type SessionRequest struct {
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Purpose       string
}

// Session is a successfully initialized gateway session.
type Session struct {
	GatewayURL    string
	SessionKey    string
	TransactionID string
}

// Verification is the gateway's answer for an independent validation call.
type Verification struct {
	Valid         bool
	Amount        decimal.Decimal
	TransactionID string
}

// SettlementKind classifies what a success callback settled.
type SettlementKind string

const (
	SettledDebt SettlementKind = "debt"
	SettledFine SettlementKind = "fine"
)

// SettlementResult reports the outcome of a success callback.
type SettlementResult struct {
	Kind           SettlementKind
	UserID         string
	DebtID         string
	FineID         string
	Amount         decimal.Decimal
	TransactionID  string
	AlreadySettled bool
}

// AuditRecord is the optional audit row written inside the settlement
// transaction.
type AuditRecord struct {
	Kind           SettlementKind
	ReferenceID    string
	TransactionID  string
	Amount         decimal.Decimal
	PayloadJSON    string
	CreatedUnixUTC int64
}

// GatewayClient is the outward collaborator for session init and validation.
type GatewayClient interface {
	InitSession(ctx context.Context, request SessionRequest) (Session, error)
	Verify(ctx context.Context, validationID string) (Verification, error)
}

// Notifier delivers best-effort settlement notifications. Failures are
// logged and swallowed; they never roll back the financial transaction.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind string, payload map[string]string) error
}

// Store is the persistence contract for settlement. DebtStore and
// LedgerStore return views over the same transaction handle so a debt
// payment, its ledger transaction, and the audit row commit together.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	DebtStore() debt.Store
	LedgerStore() ledger.Store
	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (Payment, bool, error)
	UpdatePayment(ctx context.Context, payment Payment) error
	DeletePayment(ctx context.Context, paymentID string) error
	GetFine(ctx context.Context, fineID string) (Fine, error)
	GetFineForUpdate(ctx context.Context, fineID string) (Fine, error)
	MarkFinePaid(ctx context.Context, fineID string, paidAtUnixUTC int64) error
	InsertAuditRecord(ctx context.Context, record AuditRecord) error
}
