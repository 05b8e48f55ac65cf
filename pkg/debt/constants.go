package debt

import "github.com/shopspring/decimal"

const (
	gracePeriodDays = 7
	daysPerWeek     = 7
	secondsPerDay   = 24 * 60 * 60

	operationCreate  = "create_debt"
	operationAccrue  = "accrue_late_fees"
	operationPayment = "record_payment"
	operationCheck   = "check_negative_balance"
	operationWaive   = "waive_debt"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// Flat 2.5% of the original principal per overdue week. The fee grows
// linearly with weeks, not geometrically on the accruing balance.
var weeklyLateFeeRate = decimal.New(25, -3)

// Amounts closer than this are treated as equal when reconciling a debt
// against a freshly computed balance.
var reconcileEpsilon = decimal.New(1, -2)
