package debt

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status enumerates the debt lifecycle.
type Status string

const (
	StatusOutstanding Status = "OUTSTANDING"
	StatusPartial     Status = "PARTIAL"
	StatusPaid        Status = "PAID"
	StatusWaived      Status = "WAIVED"
)

// ParseStatus validates a raw debt status.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusOutstanding, StatusPartial, StatusPaid, StatusWaived:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// String returns the raw status value.
func (status Status) String() string {
	return string(status)
}

// IsTerminal reports whether the debt can no longer accrue or accept payments.
func (status Status) IsTerminal() bool {
	return status == StatusPaid || status == StatusWaived
}

// Debt is a tracked obligation covering a citizen's negative ledger balance.
// Invariant: CurrentAmount = OriginalAmount + LateFees at all times.
type Debt struct {
	DebtID             string
	UserID             string
	OriginalAmount     decimal.Decimal
	CurrentAmount      decimal.Decimal
	PaidAmount         decimal.Decimal
	LateFees           decimal.Decimal
	WeeksPastDue       int
	DueDateUnixUTC     int64
	Status             Status
	LastPenaltyUnixUTC int64
	PaymentReference   string
	Notes              string
	PaidAtUnixUTC      int64
	CreatedUnixUTC     int64
}

/// Remaining is the live obligation: current amount minus payments.
func (debt Debt) Remaining() decimal.Decimal {
	return debt.CurrentAmount.Sub(debt.PaidAmount)
}

// Store is the persistence contract used by Service. Row reads that precede
// a mutation must lock the row (SELECT ... FOR UPDATE or equivalent) so two
// concurrent payments against the same debt serialize instead of lost-updating.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetDebt(ctx context.Context, debtID string) (Debt, error)
	GetDebtForUpdate(ctx context.Context, debtID string) (Debt, error)
	FindActiveDebt(ctx context.Context, userID string) (Debt, bool, error)
	ListOverdueDebts(ctx context.Context, atUnixUTC int64) ([]Debt, error)
	CreateDebt(ctx context.Context, debt Debt) (Debt, error)
	UpdateDebt(ctx context.Context, debt Debt) error
}

// BalanceSource supplies the canonical ledger balance for a user.
// ledger.Service satisfies this through a thin adapter at wiring time.
type BalanceSource interface {
	ComputeBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}
