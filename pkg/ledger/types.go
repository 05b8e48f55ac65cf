package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UserID identifies the citizen that owns a transaction log.
type UserID struct {
	value string
}

// Amount is a non-negative decimal magnitude. The sign of a transaction is
// carried by its type, never by the stored amount.
type Amount struct {
	value decimal.Decimal
}

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

const (
	TransactionReward      TransactionType = "REWARD"
	TransactionBonus       TransactionType = "BONUS"
	TransactionPenalty     TransactionType = "PENALTY"
	TransactionDeduction   TransactionType = "DEDUCTION"
	TransactionDebtPayment TransactionType = "DEBT_PAYMENT"
)

// TransactionStatus enumerates transaction lifecycle states.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is a single immutable line in the ledger.
type Transaction struct {
	TransactionID   string
	UserID          UserID
	Amount          Amount
	Type            TransactionType
	Status          TransactionStatus
	Source          string
	RelatedReportID *string
	CreatedUnixUTC  int64
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewAmount validates a decimal magnitude and rejects negatives.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if raw.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// NewAmountFromString parses a decimal string into an Amount.
func NewAmountFromString(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount as a decimal string.
func (amount Amount) String() string {
	return amount.value.String()
}

// ParseTransactionType validates a raw transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionReward, TransactionBonus, TransactionPenalty, TransactionDeduction, TransactionDebtPayment:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// String returns the raw type value.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// IsCredit reports whether the type increases the balance.
func (transactionType TransactionType) IsCredit() bool {
	return transactionType == TransactionReward || transactionType == TransactionBonus
}

// IsDebit reports whether the type decreases the balance.
func (transactionType TransactionType) IsDebit() bool {
	return transactionType == TransactionPenalty || transactionType == TransactionDeduction
}

// ParseTransactionStatus validates a raw transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(raw) {
	case StatusPending, StatusCompleted, StatusFailed:
		return TransactionStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionStatus, raw)
}

// String returns the raw status value.
func (status TransactionStatus) String() string {
	return string(status)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertTransaction(ctx context.Context, transaction Transaction) (Transaction, error)
	SumCompleted(ctx context.Context, userID UserID, types []TransactionType) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error)
}
