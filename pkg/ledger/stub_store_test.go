package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// stubStore keeps transactions in memory and folds them like the SQL store.
type stubStore struct {
	transactions []Transaction
	insertError  error
	sumError     error
	listError    error
	nextSequence int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction Transaction) (Transaction, error) {
	if store.insertError != nil {
		return Transaction{}, store.insertError
	}
	store.nextSequence++
	transaction.TransactionID = fmt.Sprintf("txn-%d", store.nextSequence)
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) SumCompleted(_ context.Context, userID UserID, types []TransactionType) (decimal.Decimal, error) {
	if store.sumError != nil {
		return decimal.Zero, store.sumError
	}
	total := decimal.Zero
	for _, transaction := range store.transactions {
		if transaction.UserID != userID || transaction.Status != StatusCompleted {
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

func (store *stubStore) ListTransactions(_ context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	var listed []Transaction
	for _, transaction := range store.transactions {
		if transaction.UserID != userID {
			continue
		}
		if beforeUnixUTC != 0 && transaction.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		listed = append(listed, transaction)
		if limit > 0 && len(listed) == limit {
			break
		}
	}
	return listed, nil
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := NewAmountFromString(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}
