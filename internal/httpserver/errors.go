package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/gems"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

const (
	errorInvalidPayload   = "invalid_payload"
	errorInvalidListLimit = "invalid_list_limit"
	errorInvalidUserID    = "invalid_user_id"
	errorInvalidCitizenID = "invalid_citizen_id"
	errorInvalidAmount    = "invalid_amount"
	errorInvalidType      = "invalid_transaction_type"
	errorInvalidDebtID    = "invalid_debt_id"
	errorDebtNotFound     = "debt_not_found"
	errorDebtClosed       = "debt_closed"
	errorDuplicateDebt    = "duplicate_active_debt"
	errorPaymentNotFound  = "payment_not_found"
	errorFineNotFound     = "fine_not_found"
	errorFineAlreadyPaid  = "fine_already_paid"
	errorInvalidReference = "invalid_debt_reference"
	errorInvalidCallback  = "invalid_callback"
	errorGatewaySession   = "gateway_session_failed"
	errorGatewayRejected  = "gateway_verification_failed"
	errorInternal         = "internal_error"
)

type statusMapping struct {
	sentinel error
	status   int
	code     string
}

var statusMappings = []statusMapping{
	{ledger.ErrInvalidUserID, http.StatusBadRequest, errorInvalidUserID},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, errorInvalidAmount},
	{ledger.ErrInvalidTransactionType, http.StatusBadRequest, errorInvalidType},
	{gems.ErrInvalidCitizenID, http.StatusBadRequest, errorInvalidCitizenID},
	{debt.ErrInvalidUserID, http.StatusBadRequest, errorInvalidUserID},
	{debt.ErrInvalidDebtID, http.StatusBadRequest, errorInvalidDebtID},
	{debt.ErrInvalidAmount, http.StatusBadRequest, errorInvalidAmount},
	{debt.ErrDebtNotFound, http.StatusNotFound, errorDebtNotFound},
	{debt.ErrDebtClosed, http.StatusConflict, errorDebtClosed},
	{debt.ErrDuplicateActiveDebt, http.StatusConflict, errorDuplicateDebt},
	{reconcile.ErrPaymentNotFound, http.StatusNotFound, errorPaymentNotFound},
	{reconcile.ErrFineNotFound, http.StatusNotFound, errorFineNotFound},
	{reconcile.ErrFineAlreadyPaid, http.StatusConflict, errorFineAlreadyPaid},
	{reconcile.ErrInvalidDebtReference, http.StatusBadRequest, errorInvalidReference},
	{reconcile.ErrInvalidCallback, http.StatusBadRequest, errorInvalidCallback},
	{reconcile.ErrGatewaySession, http.StatusBadGateway, errorGatewaySession},
	{reconcile.ErrGatewayVerification, http.StatusBadGateway, errorGatewayRejected},
}

func respondError(ctx *gin.Context, source error) {
	for _, mapping := range statusMappings {
		if errors.Is(source, mapping.sentinel) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, source.Error()))
			return
		}
	}
	ctx.JSON(http.StatusInternalServerError, errorResponse(errorInternal, "internal error"))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
