package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/gems"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

type recordTransactionRequest struct {
	UserID          string  `json:"user_id"`
	Amount          string  `json:"amount"`
	Type            string  `json:"type"`
	Source          string  `json:"source"`
	RelatedReportID *string `json:"related_report_id"`
}

func (server *Server) handleRecordTransaction(ctx *gin.Context) {
	var request recordTransactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	transactionType, err := ledger.ParseTransactionType(request.Type)
	if err != nil {
		respondError(ctx, err)
		return
	}
	transaction, err := server.services.Ledger.RecordTransaction(ctx.Request.Context(), userID, amount, transactionType, request.Source, request.RelatedReportID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": transactionPayload(transaction)})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	balance, err := server.services.Ledger.ComputeBalance(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id": userID.String(),
		"balance": balance.String(),
	})
}

func (server *Server) handleListTransactions(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	limit := defaultListLimit
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, parseErr := strconv.Atoi(rawLimit)
		if parseErr != nil || parsed <= 0 || parsed > maxListLimit {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidListLimit, "limit must be between 1 and "+strconv.Itoa(maxListLimit)))
			return
		}
		limit = parsed
	}
	before := time.Now().UTC().Unix() + 1
	if rawBefore := ctx.Query("before"); rawBefore != "" {
		parsed, parseErr := strconv.ParseInt(rawBefore, 10, 64)
		if parseErr != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "before must be a unix timestamp"))
			return
		}
		before = parsed
	}
	transactions, err := server.services.Ledger.ListTransactions(ctx.Request.Context(), userID, before, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	payloads := make([]gin.H, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, transactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

func (server *Server) handleGemAccount(ctx *gin.Context) {
	citizenID, err := gems.NewCitizenID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	account, found, err := server.services.Gems.GetAccount(ctx.Request.Context(), citizenID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !found {
		account = gems.GemAccount{CitizenID: citizenID}
	}
	ctx.JSON(http.StatusOK, gin.H{"account": gemAccountPayload(account)})
}

type adjustGemsRequest struct {
	Delta int64 `json:"delta"`
}

func (server *Server) handleAdjustGems(ctx *gin.Context) {
	citizenID, err := gems.NewCitizenID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request adjustGemsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	account, err := server.services.Gems.AdjustGems(ctx.Request.Context(), citizenID, request.Delta)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": gemAccountPayload(account)})
}

type setRestrictionRequest struct {
	Restricted bool `json:"restricted"`
}

func (server *Server) handleSetRestriction(ctx *gin.Context) {
	citizenID, err := gems.NewCitizenID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request setRestrictionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	account, overridden, err := server.services.Gems.SetRestriction(ctx.Request.Context(), citizenID, request.Restricted)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account":    gemAccountPayload(account),
		"overridden": overridden,
	})
}

func (server *Server) handleGetDebt(ctx *gin.Context) {
	record, err := server.services.Debts.GetDebt(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"debt": debtPayload(record)})
}

type waiveDebtRequest struct {
	AdminID string `json:"admin_id"`
	Notes   string `json:"notes"`
}

func (server *Server) handleWaiveDebt(ctx *gin.Context) {
	var request waiveDebtRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	record, err := server.services.Debts.WaiveDebt(ctx.Request.Context(), ctx.Param("id"), request.AdminID, request.Notes)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"debt": debtPayload(record)})
}

func (server *Server) handleDebtCheck(ctx *gin.Context) {
	record, active, err := server.services.Debts.CheckAndCreateDebtForNegativeBalance(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !active {
		ctx.JSON(http.StatusOK, gin.H{"debt": nil})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"debt": debtPayload(record)})
}

type paymentSessionRequest struct {
	DebtID string `json:"debt_id"`
	FineID string `json:"fine_id"`
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

func (server *Server) handleDebtSession(ctx *gin.Context) {
	var request paymentSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	session, err := server.services.Reconcile.CreateDebtPaymentSession(ctx.Request.Context(), request.DebtID, request.UserID, amount.Decimal())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sessionPayload(session))
}

func (server *Server) handleFineSession(ctx *gin.Context) {
	var request paymentSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	session, err := server.services.Reconcile.CreateFinePaymentSession(ctx.Request.Context(), request.FineID, request.UserID, amount.Decimal())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sessionPayload(session))
}

// Gateway callbacks arrive as form posts from the gateway's server, not from
// the citizen's browser. Responses stay plain so retries are never confused
// by a body the gateway does not expect.
func callbackPayload(ctx *gin.Context) reconcile.CallbackPayload {
	return reconcile.CallbackPayload{
		TransactionID: ctx.PostForm("tran_id"),
		ValidationID:  ctx.PostForm("val_id"),
		Amount:        ctx.PostForm("amount"),
		BankReference: ctx.PostForm("bank_tran_id"),
	}
}

func (server *Server) handleSuccessCallback(ctx *gin.Context) {
	payload := callbackPayload(ctx)
	result, err := server.services.Reconcile.HandleSuccessCallback(ctx.Request.Context(), payload)
	if err != nil {
		server.logger.Warn("success callback rejected",
			zap.String("transaction_id", payload.TransactionID),
			zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":          "settled",
		"kind":            string(result.Kind),
		"transaction_id":  result.TransactionID,
		"already_settled": result.AlreadySettled,
	})
}

func (server *Server) handleFailCallback(ctx *gin.Context) {
	if err := server.services.Reconcile.HandleFailCallback(ctx.Request.Context(), callbackPayload(ctx)); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (server *Server) handleCancelCallback(ctx *gin.Context) {
	if err := server.services.Reconcile.HandleCancelCallback(ctx.Request.Context(), callbackPayload(ctx)); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func transactionPayload(transaction ledger.Transaction) gin.H {
	return gin.H{
		"transaction_id":    transaction.TransactionID,
		"user_id":           transaction.UserID.String(),
		"amount":            transaction.Amount.String(),
		"type":              transaction.Type.String(),
		"status":            transaction.Status.String(),
		"source":            transaction.Source,
		"related_report_id": transaction.RelatedReportID,
		"created_unix_utc":  transaction.CreatedUnixUTC,
	}
}

func gemAccountPayload(account gems.GemAccount) gin.H {
	return gin.H{
		"citizen_id":            account.CitizenID.String(),
		"amount":                account.Amount,
		"is_restricted":         account.IsRestricted,
		"last_updated_unix_utc": account.LastUpdatedUnixUTC,
	}
}

func debtPayload(record debt.Debt) gin.H {
	return gin.H{
		"debt_id":           record.DebtID,
		"user_id":           record.UserID,
		"original_amount":   record.OriginalAmount.String(),
		"current_amount":    record.CurrentAmount.String(),
		"paid_amount":       record.PaidAmount.String(),
		"late_fees":         record.LateFees.String(),
		"remaining":         record.Remaining().String(),
		"weeks_past_due":    record.WeeksPastDue,
		"due_date_unix_utc": record.DueDateUnixUTC,
		"status":            record.Status.String(),
	}
}

func sessionPayload(session reconcile.Session) gin.H {
	return gin.H{
		"gateway_url":    session.GatewayURL,
		"session_key":    session.SessionKey,
		"transaction_id": session.TransactionID,
	}
}
