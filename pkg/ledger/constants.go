package ledger

const (
	operationRecord  = "record_transaction"
	operationBalance = "compute_balance"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
