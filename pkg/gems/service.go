package gems

import (
	"context"
	"fmt"
)

const (
	operationAdjust         = "adjust_gems"
	operationSetRestriction = "set_restriction"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records gem account mutations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a gem account mutation.
type OperationLog struct {
	Operation  string
	CitizenID  CitizenID
	Delta      int64
	Amount     int64
	Restricted bool
	Overridden bool
	Status     string
	Error      error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// Service maintains gem balances and the derived driving restriction.
// It is the only writer of the restriction flag.
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

// AdjustGems applies a signed delta to the citizen's gem count, creating the
// account at zero when absent. Decreases clamp at zero; the restriction flag
// is recomputed from the new amount in the same write.
func (service *Service) AdjustGems(ctx context.Context, citizenID CitizenID, delta int64) (GemAccount, error) {
	var updated GemAccount
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, found, err := transactionStore.GetGemAccountForUpdate(ctx, citizenID)
		if err != nil {
			return err
		}
		if !found {
			account = GemAccount{CitizenID: citizenID}
		}
		newAmount := account.Amount + delta
		if delta < 0 && newAmount < 0 {
			newAmount = 0
		}
		account.Amount = newAmount
		account.IsRestricted = newAmount <= 0
		account.LastUpdatedUnixUTC = service.nowFn()
		updated, err = transactionStore.UpsertGemAccount(ctx, account)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationAdjust,
		CitizenID:  citizenID,
		Delta:      delta,
		Amount:     updated.Amount,
		Restricted: updated.IsRestricted,
		Error:      operationError,
	})
	if operationError != nil {
		return GemAccount{}, operationError
	}
	return updated, nil
}

// SetRestriction applies a manual restriction override. The request is
// clamped: an exhausted account (amount <= 0) stays restricted no matter
// what was asked. The second return reports whether the request was
// overridden so the admin surface can say so.
func (service *Service) SetRestriction(ctx context.Context, citizenID CitizenID, requested bool) (GemAccount, bool, error) {
	var updated GemAccount
	var overridden bool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, found, err := transactionStore.GetGemAccountForUpdate(ctx, citizenID)
		if err != nil {
			return err
		}
		if !found {
			account = GemAccount{CitizenID: citizenID}
		}
		effective := requested
		if account.Amount <= 0 {
			effective = true
		}
		overridden = effective != requested
		account.IsRestricted = effective
		account.LastUpdatedUnixUTC = service.nowFn()
		updated, err = transactionStore.UpsertGemAccount(ctx, account)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationSetRestriction,
		CitizenID:  citizenID,
		Amount:     updated.Amount,
		Restricted: updated.IsRestricted,
		Overridden: overridden,
		Error:      operationError,
	})
	if operationError != nil {
		return GemAccount{}, false, operationError
	}
	return updated, overridden, nil
}

// GetAccount returns the gem account, reporting absence without creating it.
func (service *Service) GetAccount(ctx context.Context, citizenID CitizenID) (GemAccount, bool, error) {
	return service.store.GetGemAccountForUpdate(ctx, citizenID)
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
