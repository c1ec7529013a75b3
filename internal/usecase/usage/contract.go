package usage

// QuotaReader exposes a classifier's call counters and limits. A limit of 0
// means unlimited; Remaining* then reports -1. classify.QuotaTracker satisfies it.
type QuotaReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}
