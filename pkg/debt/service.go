package debt

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Service owns the debt lifecycle: opening debts for negative balances,
// accruing weekly late fees, recording payments, and waiving.
type Service struct {
	store    Store
	balances BalanceSource
	nowFn    func() int64
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, balances BalanceSource, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if balances == nil {
		return nil, fmt.Errorf("%w: balance source dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, balances: balances, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CalculateLateFee is the flat weekly fee: original x 0.025 x weeks.
// Linear in weeks by design; it never compounds on the accruing balance.
func CalculateLateFee(originalAmount decimal.Decimal, weeksPastDue int) decimal.Decimal {
	return originalAmount.Mul(weeklyLateFeeRate).Mul(decimal.NewFromInt(int64(weeksPastDue)))
}

// CreateDebt opens a debt covering the absolute value of a negative balance,
// due in seven days.
func (service *Service) CreateDebt(ctx context.Context, userID string, negativeBalance decimal.Decimal) (Debt, error) {
	var created Debt
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		created, err = service.createDebtIn(ctx, transactionStore, userID, negativeBalance)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreate,
		DebtID:    created.DebtID,
		UserID:    userID,
		Amount:    created.OriginalAmount.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Debt{}, operationError
	}
	return created, nil
}

func (service *Service) createDebtIn(ctx context.Context, store Store, userID string, negativeBalance decimal.Decimal) (Debt, error) {
	if strings.TrimSpace(userID) == "" {
		return Debt{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if !negativeBalance.IsNegative() {
		return Debt{}, fmt.Errorf("%w: balance %s is not negative", ErrInvalidAmount, negativeBalance)
	}
	originalAmount := negativeBalance.Abs()
	now := service.nowFn()
	return store.CreateDebt(ctx, Debt{
		UserID:         userID,
		OriginalAmount: originalAmount,
		CurrentAmount:  originalAmount,
		PaidAmount:     decimal.Zero,
		LateFees:       decimal.Zero,
		WeeksPastDue:   0,
		DueDateUnixUTC: now + gracePeriodDays*secondsPerDay,
		Status:         StatusOutstanding,
		CreatedUnixUTC: now,
	})
}

// AccrueLateFees advances weeksPastDue and late fees for every overdue
// OUTSTANDING or PARTIAL debt. The whole batch is one transaction, so a crash
// mid-batch never leaves partial fee application across debts. Re-running
// inside the same week window applies nothing: weeksPastDue only advances
// when a strictly larger value is computed.
func (service *Service) AccrueLateFees(ctx context.Context) (int, error) {
	accrued := 0
	now := service.nowFn()
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		overdue, err := transactionStore.ListOverdueDebts(ctx, now)
		if err != nil {
			return err
		}
		for _, stale := range overdue {
			// Re-read under lock; the listing snapshot may be stale by now.
			debt, err := transactionStore.GetDebtForUpdate(ctx, stale.DebtID)
			if err != nil {
				return err
			}
			if debt.Status.IsTerminal() || debt.DueDateUnixUTC >= now {
				continue
			}
			daysPastDue := int((now - debt.DueDateUnixUTC) / secondsPerDay)
			weeksPastDue := daysPastDue / daysPerWeek
			if weeksPastDue <= debt.WeeksPastDue {
				continue
			}
			additionalWeeks := weeksPastDue - debt.WeeksPastDue
			newFee := CalculateLateFee(debt.OriginalAmount, additionalWeeks)
			debt.LateFees = debt.LateFees.Add(newFee)
			debt.CurrentAmount = debt.OriginalAmount.Add(debt.LateFees)
			debt.WeeksPastDue = weeksPastDue
			debt.LastPenaltyUnixUTC = now
			if err := transactionStore.UpdateDebt(ctx, debt); err != nil {
				return err
			}
			accrued++
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAccrue,
		Amount:    fmt.Sprintf("%d", accrued),
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return accrued, nil
}

// RecordPayment applies a payment to a debt in its own transaction.
func (service *Service) RecordPayment(ctx context.Context, debtID string, amount decimal.Decimal, paymentReference string) (Debt, error) {
	var updated Debt
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		updated, err = service.RecordPaymentIn(ctx, transactionStore, debtID, amount, paymentReference)
		return err
	})
	if operationError != nil {
		return Debt{}, operationError
	}
	return updated, nil
}

// RecordPaymentIn applies a payment against a caller-supplied transactional
// store, so gateway settlement can combine it with other writes atomically.
// The debt row is re-read under lock here, never taken from a caller-held copy.
func (service *Service) RecordPaymentIn(ctx context.Context, store Store, debtID string, amount decimal.Decimal, paymentReference string) (Debt, error) {
	if !amount.IsPositive() {
		err := fmt.Errorf("%w: payment %s must be positive", ErrInvalidAmount, amount)
		service.logPayment(ctx, debtID, amount, paymentReference, err)
		return Debt{}, err
	}
	debt, err := store.GetDebtForUpdate(ctx, debtID)
	if err != nil {
		service.logPayment(ctx, debtID, amount, paymentReference, err)
		return Debt{}, err
	}
	if debt.Status.IsTerminal() {
		err := fmt.Errorf("%w: debt %s is %s", ErrDebtClosed, debtID, debt.Status)
		service.logPayment(ctx, debtID, amount, paymentReference, err)
		return Debt{}, err
	}
	debt.PaidAmount = debt.PaidAmount.Add(amount)
	debt.PaymentReference = paymentReference
	remaining := debt.CurrentAmount.Sub(debt.PaidAmount)
	switch {
	case remaining.LessThanOrEqual(decimal.Zero):
		debt.Status = StatusPaid
		debt.PaidAtUnixUTC = service.nowFn()
	case debt.PaidAmount.IsPositive():
		debt.Status = StatusPartial
	}
	if err := store.UpdateDebt(ctx, debt); err != nil {
		service.logPayment(ctx, debtID, amount, paymentReference, err)
		return Debt{}, err
	}
	service.logPayment(ctx, debtID, amount, paymentReference, nil)
	return debt, nil
}

// CheckAndCreateDebtForNegativeBalance recomputes the ledger balance and
// opens or reconciles the user's debt. At most one non-terminal debt exists
// per user: an existing one is adjusted, never duplicated. The returned bool
// reports whether a debt is active after the call.
func (service *Service) CheckAndCreateDebtForNegativeBalance(ctx context.Context, userID string) (Debt, bool, error) {
	balance, err := service.balances.ComputeBalance(ctx, userID)
	if err != nil {
		return Debt{}, false, err
	}
	if !balance.IsNegative() {
		return Debt{}, false, nil
	}
	absoluteBalance := balance.Abs()
	var result Debt
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, found, err := transactionStore.FindActiveDebt(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			result, err = service.createDebtIn(ctx, transactionStore, userID, balance)
			return err
		}
		liveRemaining := existing.Remaining()
		if liveRemaining.Sub(absoluteBalance).Abs().LessThanOrEqual(reconcileEpsilon) {
			result = existing
			return nil
		}
		// Further penalties landed after the debt was opened. Shift the
		// principal by the delta and rebase currentAmount on what is
		// already paid, leaving paidAmount untouched.
		delta := absoluteBalance.Sub(liveRemaining)
		existing.OriginalAmount = existing.OriginalAmount.Add(delta)
		existing.CurrentAmount = existing.PaidAmount.Add(absoluteBalance)
		existing.LateFees = existing.CurrentAmount.Sub(existing.OriginalAmount)
		if existing.LateFees.IsNegative() {
			existing.LateFees = decimal.Zero
			existing.OriginalAmount = existing.CurrentAmount
		}
		if err := transactionStore.UpdateDebt(ctx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCheck,
		DebtID:    result.DebtID,
		UserID:    userID,
		Amount:    absoluteBalance.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Debt{}, false, operationError
	}
	return result, true, nil
}

// WaiveDebt closes a debt without payment. Historical amounts are preserved
// for audit; only the status changes.
func (service *Service) WaiveDebt(ctx context.Context, debtID string, adminID string, notes string) (Debt, error) {
	var waived Debt
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		debt, err := transactionStore.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		debt.Status = StatusWaived
		debt.Notes = fmt.Sprintf("waived by %s: %s", adminID, notes)
		if err := transactionStore.UpdateDebt(ctx, debt); err != nil {
			return err
		}
		waived = debt
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationWaive,
		DebtID:    debtID,
		UserID:    waived.UserID,
		Error:     operationError,
	})
	if operationError != nil {
		return Debt{}, operationError
	}
	return waived, nil
}

// GetDebt returns a debt without locking it.
func (service *Service) GetDebt(ctx context.Context, debtID string) (Debt, error) {
	return service.store.GetDebt(ctx, debtID)
}

func (service *Service) logPayment(ctx context.Context, debtID string, amount decimal.Decimal, reference string, err error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationPayment,
		DebtID:    debtID,
		Amount:    amount.String(),
		Reference: reference,
		Error:     err,
	})
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
