package gormstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nagorik/civicledger/pkg/ledger"
)

// LedgerStore implements ledger.Store using GORM.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm.DB.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LedgerStore{db: transaction})
	})
}

func (store *LedgerStore) InsertTransaction(ctx context.Context, transaction ledger.Transaction) (ledger.Transaction, error) {
	row := Transaction{
		UserID:          transaction.UserID.String(),
		Amount:          transaction.Amount.Decimal(),
		Type:            transaction.Type.String(),
		Status:          transaction.Status.String(),
		Source:          transaction.Source,
		RelatedReportID: transaction.RelatedReportID,
		CreatedAt:       time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() || transaction.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeInsert, err)
	}
	return mapTransaction(row)
}

func (store *LedgerStore) SumCompleted(ctx context.Context, userID ledger.UserID, types []ledger.TransactionType) (decimal.Decimal, error) {
	typeValues := make([]string, 0, len(types))
	for _, transactionType := range types {
		typeValues = append(typeValues, transactionType.String())
	}
	var sum struct {
		Total decimal.Decimal
	}
	err := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ?", userID.String()).
		Where("status = ?", ledger.StatusCompleted.String()).
		Where("type in ?", typeValues).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *LedgerStore) ListTransactions(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Transaction, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []Transaction
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTxn, errorCodeList, err)
	}

	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTxn, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func mapTransaction(row Transaction) (ledger.Transaction, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.NewAmount(row.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	status, err := ledger.ParseTransactionStatus(row.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		TransactionID:   row.TransactionID,
		UserID:          userID,
		Amount:          amount,
		Type:            transactionType,
		Status:          status,
		Source:          row.Source,
		RelatedReportID: row.RelatedReportID,
		CreatedUnixUTC:  row.CreatedAt.Unix(),
	}, nil
}
