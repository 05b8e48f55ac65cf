package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

const defaultAuditPayload = "{}"

// ReconcileStore implements reconcile.Store using GORM. Its DebtStore and
// LedgerStore views share the same connection handle, so inside WithTx they
// ride the same database transaction.
type ReconcileStore struct {
	db *gorm.DB
}

// NewReconcileStore returns a ReconcileStore backed by gorm.DB.
func NewReconcileStore(db *gorm.DB) *ReconcileStore {
	return &ReconcileStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *ReconcileStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reconcile.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &ReconcileStore{db: transaction})
	})
}

// DebtStore returns the debt view over the same handle.
func (store *ReconcileStore) DebtStore() debt.Store {
	return NewDebtStore(store.db)
}

// LedgerStore returns the ledger view over the same handle.
func (store *ReconcileStore) LedgerStore() ledger.Store {
	return NewLedgerStore(store.db)
}

func (store *ReconcileStore) CreatePayment(ctx context.Context, payment reconcile.Payment) (reconcile.Payment, error) {
	row := paymentRow(payment)
	row.CreatedAt = time.Now().UTC()
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return reconcile.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeDuplicate, err)
	}
	if err != nil {
		return reconcile.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return mapPayment(row)
}

func (store *ReconcileStore) GetPaymentByTransactionID(ctx context.Context, transactionID string) (reconcile.Payment, bool, error) {
	var row Payment
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reconcile.Payment{}, false, nil
		}
		return reconcile.Payment{}, false, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	payment, err := mapPayment(row)
	if err != nil {
		return reconcile.Payment{}, false, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return payment, true, nil
}

func (store *ReconcileStore) UpdatePayment(ctx context.Context, payment reconcile.Payment) error {
	row := paymentRow(payment)
	result := store.db.WithContext(ctx).
		Model(&Payment{}).
		Where("payment_id = ?", payment.PaymentID).
		Select("payment_status", "paid_at").
		Updates(&row)
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, reconcile.ErrPaymentNotFound)
	}
	return nil
}

func (store *ReconcileStore) DeletePayment(ctx context.Context, paymentID string) error {
	err := store.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Delete(&Payment{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeDelete, err)
	}
	return nil
}

func (store *ReconcileStore) GetFine(ctx context.Context, fineID string) (reconcile.Fine, error) {
	return store.getFine(ctx, fineID, false)
}

func (store *ReconcileStore) GetFineForUpdate(ctx context.Context, fineID string) (reconcile.Fine, error) {
	return store.getFine(ctx, fineID, true)
}

func (store *ReconcileStore) getFine(ctx context.Context, fineID string, forUpdate bool) (reconcile.Fine, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Fine
	err := query.Where("fine_id = ?", fineID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reconcile.Fine{}, wrapStoreError(errorSubjectFine, errorCodeGet, reconcile.ErrFineNotFound)
		}
		return reconcile.Fine{}, wrapStoreError(errorSubjectFine, errorCodeGet, err)
	}
	return reconcile.Fine{
		FineID: row.FineID,
		UserID: row.UserID,
		Amount: row.Amount,
		Status: reconcile.FineStatus(row.Status),
	}, nil
}

func (store *ReconcileStore) MarkFinePaid(ctx context.Context, fineID string, paidAtUnixUTC int64) error {
	paidAt := time.Unix(paidAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Fine{}).
		Where("fine_id = ?", fineID).
		Updates(map[string]interface{}{
			"status":  string(reconcile.FinePaid),
			"paid_at": &paidAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectFine, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectFine, errorCodeUpdate, reconcile.ErrFineNotFound)
	}
	return nil
}

func (store *ReconcileStore) InsertAuditRecord(ctx context.Context, record reconcile.AuditRecord) error {
	payload := record.PayloadJSON
	if payload == "" {
		payload = defaultAuditPayload
	}
	row := SettlementAudit{
		Kind:          string(record.Kind),
		ReferenceID:   record.ReferenceID,
		TransactionID: record.TransactionID,
		Amount:        record.Amount,
		Payload:       datatypes.JSON([]byte(payload)),
		CreatedAt:     time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeInsert, err)
	}
	return nil
}

func paymentRow(payment reconcile.Payment) Payment {
	row := Payment{
		PaymentID:     payment.PaymentID,
		UserID:        payment.UserID,
		FineID:        payment.FineID,
		Amount:        payment.Amount,
		PaymentMethod: payment.PaymentMethod,
		PaymentStatus: string(payment.Status),
		TransactionID: payment.TransactionID,
	}
	if payment.PaidAtUnixUTC != 0 {
		value := time.Unix(payment.PaidAtUnixUTC, 0).UTC()
		row.PaidAt = &value
	}
	return row
}

func mapPayment(row Payment) (reconcile.Payment, error) {
	return reconcile.Payment{
		PaymentID:     row.PaymentID,
		UserID:        row.UserID,
		FineID:        row.FineID,
		Amount:        row.Amount,
		PaymentMethod: row.PaymentMethod,
		Status:        reconcile.PaymentStatus(row.PaymentStatus),
		TransactionID: row.TransactionID,
		PaidAtUnixUTC: timeOrZero(row.PaidAt),
	}, nil
}
