package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transaction mirrors the transactions table. Rows are immutable once created.
type Transaction struct {
	TransactionID   string          `gorm:"type:uuid;primaryKey"`
	UserID          string          `gorm:"not null;index:idx_transactions_user_created,priority:1"`
	Amount          decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Type            string          `gorm:"not null"`
	Status          string          `gorm:"not null"`
	Source          string          `gorm:"not null"`
	RelatedReportID *string         `gorm:""`
	CreatedAt       time.Time       `gorm:"not null;index:idx_transactions_user_created,priority:2"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// OutstandingDebt mirrors the outstanding_debts table. The application keeps
// at most one non-terminal row per user by searching before creating; a
// partial unique index on (user_id) where status in ('OUTSTANDING','PARTIAL')
// is the recommended belt-and-braces for Postgres deployments.
type OutstandingDebt struct {
	DebtID           string          `gorm:"type:uuid;primaryKey"`
	UserID           string          `gorm:"not null;index:idx_debts_user_status,priority:1"`
	OriginalAmount   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	CurrentAmount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PaidAmount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	LateFees         decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	WeeksPastDue     int             `gorm:"not null"`
	DueDate          time.Time       `gorm:"not null;index"`
	Status           string          `gorm:"not null;index:idx_debts_user_status,priority:2"`
	LastPenaltyDate  *time.Time      `gorm:""`
	PaymentReference string          `gorm:""`
	Notes            string          `gorm:""`
	PaidAt           *time.Time      `gorm:""`
	CreatedAt        time.Time       `gorm:"not null"`
}

func (OutstandingDebt) TableName() string { return "outstanding_debts" }

func (debt *OutstandingDebt) BeforeCreate(tx *gorm.DB) error {
	if debt.DebtID == "" {
		debt.DebtID = uuid.NewString()
	}
	return nil
}

// GemAccount mirrors the gem_accounts table, one row per citizen.
type GemAccount struct {
	CitizenID    string    `gorm:"primaryKey"`
	Amount       int64     `gorm:"not null"`
	IsRestricted bool      `gorm:"not null"`
	LastUpdated  time.Time `gorm:"not null"`
}

func (GemAccount) TableName() string { return "gem_accounts" }

// Payment mirrors the payments table. TransactionID is the gateway
// correlation key and the idempotency anchor for callbacks.
type Payment struct {
	PaymentID     string          `gorm:"type:uuid;primaryKey"`
	UserID        string          `gorm:"not null;index"`
	FineID        *string         `gorm:""`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PaymentMethod string          `gorm:"not null"`
	PaymentStatus string          `gorm:"not null"`
	TransactionID string          `gorm:"not null;uniqueIndex:uniq_payments_transaction_id"`
	PaidAt        *time.Time      `gorm:""`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// Fine carries the slice of the fine record settlement touches.
type Fine struct {
	FineID    string          `gorm:"type:uuid;primaryKey"`
	UserID    string          `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Status    string          `gorm:"not null"`
	PaidAt    *time.Time      `gorm:""`
	CreatedAt time.Time       `gorm:"not null"`
}

func (Fine) TableName() string { return "fines" }

func (fine *Fine) BeforeCreate(tx *gorm.DB) error {
	if fine.FineID == "" {
		fine.FineID = uuid.NewString()
	}
	return nil
}

// SettlementAudit mirrors the settlement_audits table written inside the
// settlement transaction.
type SettlementAudit struct {
	AuditID       string          `gorm:"type:uuid;primaryKey"`
	Kind          string          `gorm:"not null"`
	ReferenceID   string          `gorm:"not null;index"`
	TransactionID string          `gorm:"not null;index"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Payload       datatypes.JSON  `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (SettlementAudit) TableName() string { return "settlement_audits" }

func (audit *SettlementAudit) BeforeCreate(tx *gorm.DB) error {
	if audit.AuditID == "" {
		audit.AuditID = uuid.NewString()
	}
	return nil
}

// Models lists every table for schema preparation.
func Models() []interface{} {
	return []interface{}{
		&Transaction{},
		&OutstandingDebt{},
		&GemAccount{},
		&Payment{},
		&Fine{},
		&SettlementAudit{},
	}
}
