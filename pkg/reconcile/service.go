package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/ledger"
)

const (
	sourcePaymentGateway = "payment_gateway"

	notifyDebtSettled = "debt_settled"
	notifyFineSettled = "fine_settled"

	paymentMethodGateway = "gateway"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger wires a zap logger for adapter-level events.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNonce overrides the nonce source used in transaction ids.
func WithNonce(nonce func() uint32) ServiceOption {
	return func(service *Service) {
		if nonce != nil {
			service.nonceFn = nonce
		}
	}
}

// Service reconciles asynchronous gateway callbacks against exactly one
// local obligation (fine or debt), exactly once. It swallows notifier
// failures and propagates every financial-state error.
type Service struct {
	store    Store
	debts    *debt.Service
	gateway  GatewayClient
	notifier Notifier
	nowFn    func() int64
	nonceFn  func() uint32
	logger   *zap.Logger
}

// NewService wires a Service. The notifier may be nil (notifications off).
func NewService(store Store, debts *debt.Service, gateway GatewayClient, notifier Notifier, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if debts == nil {
		return nil, fmt.Errorf("%w: debt service dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:    store,
		debts:    debts,
		gateway:  gateway,
		notifier: notifier,
		nowFn:    now,
		nonceFn:  defaultNonce,
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateDebtPaymentSession validates the debt and opens a gateway session.
// No local state is written: debt settlement reconciles entirely through the
// debt row, keyed by the debt id embedded in the transaction id.
func (service *Service) CreateDebtPaymentSession(ctx context.Context, debtID string, userID string, amount decimal.Decimal) (Session, error) {
	target, err := service.debts.GetDebt(ctx, debtID)
	if err != nil {
		return Session{}, err
	}
	if target.Status.IsTerminal() {
		return Session{}, fmt.Errorf("%w: debt %s is %s", debt.ErrDebtClosed, debtID, target.Status)
	}
	transactionID := EncodeDebtReference(debtID, service.nowFn(), service.nonceFn())
	session, err := service.gateway.InitSession(ctx, SessionRequest{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Purpose:       "debt_settlement",
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGatewaySession, err)
	}
	session.TransactionID = transactionID
	return session, nil
}

// CreateFinePaymentSession pre-creates a PENDING payment record before the
// redirect so a later callback can be matched by transaction id. A failed
// session init deletes the record again; no orphaned PENDING rows survive.
func (service *Service) CreateFinePaymentSession(ctx context.Context, fineID string, userID string, amount decimal.Decimal) (Session, error) {
	fine, err := service.store.GetFine(ctx, fineID)
	if err != nil {
		return Session{}, err
	}
	if fine.Status == FinePaid {
		return Session{}, fmt.Errorf("%w: %s", ErrFineAlreadyPaid, fineID)
	}
	transactionID := EncodeFineReference(service.nowFn(), service.nonceFn())
	pending, err := service.store.CreatePayment(ctx, Payment{
		UserID:        userID,
		FineID:        &fineID,
		Amount:        amount,
		PaymentMethod: paymentMethodGateway,
		Status:        PaymentPending,
		TransactionID: transactionID,
	})
	if err != nil {
		return Session{}, err
	}
	session, err := service.gateway.InitSession(ctx, SessionRequest{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Purpose:       "fine_settlement",
	})
	if err != nil {
		if deleteErr := service.store.DeletePayment(ctx, pending.PaymentID); deleteErr != nil {
			service.logger.Error("compensating delete of pending payment failed",
				zap.String("payment_id", pending.PaymentID),
				zap.String("transaction_id", transactionID),
				zap.Error(deleteErr))
		}
		return Session{}, fmt.Errorf("%w: %v", ErrGatewaySession, err)
	}
	session.TransactionID = transactionID
	return session, nil
}

// HandleSuccessCallback settles exactly one obligation for a verified
// gateway success. The callback's stated status is never trusted: the
// transaction is re-verified with the gateway before any write.
func (service *Service) HandleSuccessCallback(ctx context.Context, payload CallbackPayload) (SettlementResult, error) {
	if payload.TransactionID == "" || payload.ValidationID == "" {
		return SettlementResult{}, fmt.Errorf("%w: missing tran_id or val_id", ErrInvalidCallback)
	}
	verification, err := service.gateway.Verify(ctx, payload.ValidationID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("%w: %v", ErrGatewayVerification, err)
	}
	if !verification.Valid {
		return SettlementResult{}, fmt.Errorf("%w: gateway rejected val_id %q", ErrGatewayVerification, payload.ValidationID)
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		return SettlementResult{}, fmt.Errorf("%w: bad amount %q", ErrInvalidCallback, payload.Amount)
	}

	var result SettlementResult
	if IsDebtReference(payload.TransactionID) {
		result, err = service.settleDebt(ctx, payload, amount)
	} else {
		result, err = service.settleFine(ctx, payload, amount)
	}
	if err != nil {
		service.logger.Error("settlement failed",
			zap.String("transaction_id", payload.TransactionID),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return SettlementResult{}, err
	}
	service.notifySettled(ctx, result)
	return result, nil
}

func (service *Service) settleDebt(ctx context.Context, payload CallbackPayload, amount decimal.Decimal) (SettlementResult, error) {
	debtID, err := DecodeDebtReference(payload.TransactionID)
	if err != nil {
		return SettlementResult{}, err
	}
	var settled debt.Debt
	transactionError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		updated, err := service.debts.RecordPaymentIn(ctx, transactionStore.DebtStore(), debtID, amount, payload.TransactionID)
		if err != nil {
			return err
		}
		settled = updated
		if err := service.appendDebtPaymentTransaction(ctx, transactionStore.LedgerStore(), updated.UserID, amount); err != nil {
			return err
		}
		return transactionStore.InsertAuditRecord(ctx, AuditRecord{
			Kind:           SettledDebt,
			ReferenceID:    debtID,
			TransactionID:  payload.TransactionID,
			Amount:         amount,
			PayloadJSON:    marshalPayload(payload),
			CreatedUnixUTC: service.nowFn(),
		})
	})
	if transactionError != nil {
		return SettlementResult{}, transactionError
	}
	return SettlementResult{
		Kind:          SettledDebt,
		UserID:        settled.UserID,
		DebtID:        debtID,
		Amount:        amount,
		TransactionID: payload.TransactionID,
	}, nil
}

func (service *Service) settleFine(ctx context.Context, payload CallbackPayload, amount decimal.Decimal) (SettlementResult, error) {
	var result SettlementResult
	transactionError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		payment, found, err := transactionStore.GetPaymentByTransactionID(ctx, payload.TransactionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: transaction id %q", ErrPaymentNotFound, payload.TransactionID)
		}
		result = SettlementResult{
			Kind:          SettledFine,
			UserID:        payment.UserID,
			Amount:        amount,
			TransactionID: payload.TransactionID,
		}
		if payment.FineID != nil {
			result.FineID = *payment.FineID
		}
		if payment.Status == PaymentCompleted {
			// Duplicate callback for an already-settled fine: benign no-op.
			result.AlreadySettled = true
			return nil
		}
		now := service.nowFn()
		payment.Status = PaymentCompleted
		payment.PaidAtUnixUTC = now
		if err := transactionStore.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if payment.FineID != nil {
			fine, err := transactionStore.GetFineForUpdate(ctx, *payment.FineID)
			if err != nil {
				return err
			}
			// Re-setting PAID on a paid fine stays a safe no-op.
			if fine.Status != FinePaid {
				if err := transactionStore.MarkFinePaid(ctx, *payment.FineID, now); err != nil {
					return err
				}
			}
		}
		return transactionStore.InsertAuditRecord(ctx, AuditRecord{
			Kind:           SettledFine,
			ReferenceID:    result.FineID,
			TransactionID:  payload.TransactionID,
			Amount:         amount,
			PayloadJSON:    marshalPayload(payload),
			CreatedUnixUTC: now,
		})
	})
	if transactionError != nil {
		return SettlementResult{}, transactionError
	}
	return result, nil
}

// HandleFailCallback marks a known payment FAILED. Unknown transaction ids
// succeed silently: the gateway fail-calls sessions this system never
// persisted, such as debt flows.
func (service *Service) HandleFailCallback(ctx context.Context, payload CallbackPayload) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		payment, found, err := transactionStore.GetPaymentByTransactionID(ctx, payload.TransactionID)
		if err != nil {
			return err
		}
		if !found || payment.Status == PaymentCompleted {
			return nil
		}
		payment.Status = PaymentFailed
		return transactionStore.UpdatePayment(ctx, payment)
	})
}

// HandleCancelCallback deletes the PENDING placeholder for a cancelled
// session. A cancelled session never produced value, so the row is removed
// rather than marked FAILED.
func (service *Service) HandleCancelCallback(ctx context.Context, payload CallbackPayload) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		payment, found, err := transactionStore.GetPaymentByTransactionID(ctx, payload.TransactionID)
		if err != nil {
			return err
		}
		if !found || payment.Status != PaymentPending {
			return nil
		}
		return transactionStore.DeletePayment(ctx, payment.PaymentID)
	})
}

func (service *Service) appendDebtPaymentTransaction(ctx context.Context, store ledger.Store, rawUserID string, amount decimal.Decimal) error {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return err
	}
	ledgerAmount, err := ledger.NewAmount(amount)
	if err != nil {
		return err
	}
	_, err = store.InsertTransaction(ctx, ledger.Transaction{
		UserID:         userID,
		Amount:         ledgerAmount,
		Type:           ledger.TransactionDebtPayment,
		Status:         ledger.StatusCompleted,
		Source:         sourcePaymentGateway,
		CreatedUnixUTC: service.nowFn(),
	})
	return err
}

func (service *Service) notifySettled(ctx context.Context, result SettlementResult) {
	if service.notifier == nil || result.AlreadySettled {
		return
	}
	kind := notifyFineSettled
	reference := result.FineID
	if result.Kind == SettledDebt {
		kind = notifyDebtSettled
		reference = result.DebtID
	}
	err := service.notifier.Notify(ctx, result.UserID, kind, map[string]string{
		"reference":      reference,
		"amount":         result.Amount.String(),
		"transaction_id": result.TransactionID,
	})
	if err != nil {
		service.logger.Warn("settlement notification failed",
			zap.String("user_id", result.UserID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

func defaultNonce() uint32 {
	return rand.Uint32()
}

func marshalPayload(payload CallbackPayload) string {
	encoded, err := json.Marshal(map[string]string{
		"tran_id":  payload.TransactionID,
		"val_id":   payload.ValidationID,
		"amount":   payload.Amount,
		"bank_ref": payload.BankReference,
	})
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
