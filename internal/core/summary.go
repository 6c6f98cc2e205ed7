package core

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Name  string `json:"category__name"`
	Total Money  `json:"total"`
}

// RecentExpense is an expense row as rendered by the home summary, which
// carries the category name instead of its id.
type RecentExpense struct {
	ID           int64  `json:"id"`
	Description  string `json:"description"`
	Amount       Money  `json:"amount"`
	Date         Date   `json:"date"`
	CategoryName string `json:"category_name"`
}

// HomeSummary is the dashboard payload of the homepage.
type HomeSummary struct {
	PeriodLabel        string          `json:"summary_period_label"`
	CurrentMonthTotal  Money           `json:"current_month_total"`
	PreviousMonthTotal *Money          `json:"previous_month_total"`
	TopCategory        *CategoryTotal  `json:"top_category_current_month"`
	RecentExpenses     []RecentExpense `json:"recent_expenses"`
}

// Trend describes the month-over-month movement of spending.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendFlat    Trend = "flat"
	TrendUnknown Trend = "unknown"
)

// MonthChange compares the current month against the previous one.
// pct is only meaningful when the previous total is positive.
func (s HomeSummary) MonthChange() (pct float64, trend Trend) {
	if s.PreviousMonthTotal == nil {
		return 0, TrendUnknown
	}
	prev := s.PreviousMonthTotal.Cents
	cur := s.CurrentMonthTotal.Cents
	if prev > 0 {
		pct = float64(cur-prev) / float64(prev) * 100
	}
	switch {
	case cur > prev:
		return pct, TrendUp
	case cur < prev:
		return pct, TrendDown
	default:
		return pct, TrendFlat
	}
}

// ExpenseSeries is the aggregated series served by expenses/summary/.
type ExpenseSeries struct {
	Labels []string `json:"labels"`
	Totals []Money  `json:"totals"`
}

// Points pairs labels with totals, dropping unmatched trailing entries.
func (s ExpenseSeries) Points() []CategoryTotal {
	n := min(len(s.Labels), len(s.Totals))
	out := make([]CategoryTotal, n)
	for i := 0; i < n; i++ {
		out[i] = CategoryTotal{Name: s.Labels[i], Total: s.Totals[i]}
	}
	return out
}
