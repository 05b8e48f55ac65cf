package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service contains the ledger domain logic over a Store.
//
// The balance is never cached: every read folds the COMPLETED transaction
// log, so the log stays the single source of truth across the independent
// write paths that touch the same user.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// RecordTransaction appends a COMPLETED transaction to the user's log.
// Amounts arrive as positive magnitudes; the type carries the sign.
func (service *Service) RecordTransaction(ctx context.Context, userID UserID, amount Amount, transactionType TransactionType, source string, relatedReportID *string) (Transaction, error) {
	var recorded Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		inserted, err := transactionStore.InsertTransaction(ctx, Transaction{
			UserID:          userID,
			Amount:          amount,
			Type:            transactionType,
			Status:          StatusCompleted,
			Source:          source,
			RelatedReportID: relatedReportID,
			CreatedUnixUTC:  service.nowFn(),
		})
		if err != nil {
			return err
		}
		recorded = inserted
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRecord,
		UserID:    userID,
		Amount:    amount,
		Type:      transactionType,
		Source:    source,
		Error:     operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// ComputeBalance folds the COMPLETED transaction log:
// sum of rewards and bonuses minus sum of penalties and deductions.
// Pure read; safe to call concurrently and repeatedly.
func (service *Service) ComputeBalance(ctx context.Context, userID UserID) (decimal.Decimal, error) {
	credits, err := service.store.SumCompleted(ctx, userID, []TransactionType{TransactionReward, TransactionBonus})
	if err != nil {
		return decimal.Zero, err
	}
	debits, err := service.store.SumCompleted(ctx, userID, []TransactionType{TransactionPenalty, TransactionDeduction})
	if err != nil {
		return decimal.Zero, err
	}
	return credits.Sub(debits), nil
}

// ComputeBalanceIn is ComputeBalance against a caller-supplied store,
// for callers that already hold a transaction.
func (service *Service) ComputeBalanceIn(ctx context.Context, store Store, userID UserID) (decimal.Decimal, error) {
	credits, err := store.SumCompleted(ctx, userID, []TransactionType{TransactionReward, TransactionBonus})
	if err != nil {
		return decimal.Zero, err
	}
	debits, err := store.SumCompleted(ctx, userID, []TransactionType{TransactionPenalty, TransactionDeduction})
	if err != nil {
		return decimal.Zero, err
	}
	return credits.Sub(debits), nil
}

// ListTransactions lists ledger transactions for a user before a cutoff time.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	return service.store.ListTransactions(ctx, userID, beforeUnixUTC, limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
