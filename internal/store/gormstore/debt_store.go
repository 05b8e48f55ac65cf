package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nagorik/civicledger/pkg/debt"
)

// DebtStore implements debt.Store using GORM.
type DebtStore struct {
	db *gorm.DB
}

// NewDebtStore returns a DebtStore backed by gorm.DB.
func NewDebtStore(db *gorm.DB) *DebtStore {
	return &DebtStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *DebtStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore debt.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &DebtStore{db: transaction})
	})
}

func (store *DebtStore) GetDebt(ctx context.Context, debtID string) (debt.Debt, error) {
	return store.getDebt(ctx, debtID, false)
}

// GetDebtForUpdate locks the row so concurrent payments serialize.
func (store *DebtStore) GetDebtForUpdate(ctx context.Context, debtID string) (debt.Debt, error) {
	return store.getDebt(ctx, debtID, true)
}

func (store *DebtStore) getDebt(ctx context.Context, debtID string, forUpdate bool) (debt.Debt, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row OutstandingDebt
	err := query.Where("debt_id = ?", debtID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return debt.Debt{}, wrapStoreError(errorSubjectDebt, errorCodeGet, debt.ErrDebtNotFound)
		}
		return debt.Debt{}, wrapStoreError(errorSubjectDebt, errorCodeGet, err)
	}
	return mapDebt(row)
}

func (store *DebtStore) FindActiveDebt(ctx context.Context, userID string) (debt.Debt, bool, error) {
	var row OutstandingDebt
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status in ?", userID, activeStatusValues()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return debt.Debt{}, false, nil
		}
		return debt.Debt{}, false, wrapStoreError(errorSubjectDebt, errorCodeGet, err)
	}
	mapped, err := mapDebt(row)
	if err != nil {
		return debt.Debt{}, false, wrapStoreError(errorSubjectDebt, errorCodeInvalid, err)
	}
	return mapped, true, nil
}

func (store *DebtStore) ListOverdueDebts(ctx context.Context, atUnixUTC int64) ([]debt.Debt, error) {
	at := time.Unix(atUnixUTC, 0).UTC()
	var rows []OutstandingDebt
	err := store.db.WithContext(ctx).
		Where("status in ? AND due_date < ?", activeStatusValues(), at).
		Order("due_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectDebt, errorCodeList, err)
	}
	debts := make([]debt.Debt, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapDebt(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectDebt, errorCodeInvalid, err)
		}
		debts = append(debts, mapped)
	}
	return debts, nil
}

func (store *DebtStore) CreateDebt(ctx context.Context, record debt.Debt) (debt.Debt, error) {
	row := debtRow(record)
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return debt.Debt{}, wrapStoreError(errorSubjectDebt, errorCodeDuplicate, debt.ErrDuplicateActiveDebt)
	}
	if err != nil {
		return debt.Debt{}, wrapStoreError(errorSubjectDebt, errorCodeCreate, err)
	}
	return mapDebt(row)
}

func (store *DebtStore) UpdateDebt(ctx context.Context, record debt.Debt) error {
	row := debtRow(record)
	result := store.db.WithContext(ctx).
		Model(&OutstandingDebt{}).
		Where("debt_id = ?", record.DebtID).
		Select("*").
		Omit("debt_id", "created_at").
		Updates(&row)
	if result.Error != nil {
		return wrapStoreError(errorSubjectDebt, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectDebt, errorCodeUpdate, debt.ErrDebtNotFound)
	}
	return nil
}

func activeStatusValues() []string {
	return []string{debt.StatusOutstanding.String(), debt.StatusPartial.String()}
}

func debtRow(record debt.Debt) OutstandingDebt {
	row := OutstandingDebt{
		DebtID:           record.DebtID,
		UserID:           record.UserID,
		OriginalAmount:   record.OriginalAmount,
		CurrentAmount:    record.CurrentAmount,
		PaidAmount:       record.PaidAmount,
		LateFees:         record.LateFees,
		WeeksPastDue:     record.WeeksPastDue,
		DueDate:          time.Unix(record.DueDateUnixUTC, 0).UTC(),
		Status:           record.Status.String(),
		PaymentReference: record.PaymentReference,
		Notes:            record.Notes,
		CreatedAt:        time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if record.LastPenaltyUnixUTC != 0 {
		value := time.Unix(record.LastPenaltyUnixUTC, 0).UTC()
		row.LastPenaltyDate = &value
	}
	if record.PaidAtUnixUTC != 0 {
		value := time.Unix(record.PaidAtUnixUTC, 0).UTC()
		row.PaidAt = &value
	}
	return row
}

func mapDebt(row OutstandingDebt) (debt.Debt, error) {
	status, err := debt.ParseStatus(row.Status)
	if err != nil {
		return debt.Debt{}, err
	}
	return debt.Debt{
		DebtID:             row.DebtID,
		UserID:             row.UserID,
		OriginalAmount:     row.OriginalAmount,
		CurrentAmount:      row.CurrentAmount,
		PaidAmount:         row.PaidAmount,
		LateFees:           row.LateFees,
		WeeksPastDue:       row.WeeksPastDue,
		DueDateUnixUTC:     row.DueDate.Unix(),
		Status:             status,
		LastPenaltyUnixUTC: timeOrZero(row.LastPenaltyDate),
		PaymentReference:   row.PaymentReference,
		Notes:              row.Notes,
		PaidAtUnixUTC:      timeOrZero(row.PaidAt),
		CreatedUnixUTC:     row.CreatedAt.Unix(),
	}, nil
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}
