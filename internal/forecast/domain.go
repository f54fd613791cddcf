// Package forecast implements P&L forecast generation and recalculation.
package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

// Category groups a P&L line.
type Category string

const (
	// CategoryRevenue marks revenue lines.
	CategoryRevenue Category = "REVENUE"
	// CategoryCOGS marks cost-of-goods-sold lines.
	CategoryCOGS Category = "COGS"
	// CategoryOpex marks operating-expense lines.
	CategoryOpex Category = "OPEX"
)

// Forecastable reports whether the generator and engine manage lines of
// this category. Other categories pass through untouched.
func (c Category) Forecastable() bool {
	switch c {
	case CategoryRevenue, CategoryCOGS, CategoryOpex:
		return true
	}
	return false
}

// DistributionMethod spreads an annual figure across forecast months.
type DistributionMethod string

const (
	// DistributionEven gives each forecast month an equal share.
	DistributionEven DistributionMethod = "EVEN"
	// DistributionSeasonal weights months by the baseline-window shape.
	DistributionSeasonal DistributionMethod = "SEASONAL"
	// DistributionGrowth assigns monotonically increasing shares.
	DistributionGrowth DistributionMethod = "GROWTH"
)

// MethodKind enumerates how a line's forecast months are derived.
type MethodKind string

const (
	// MethodFlat holds a fixed per-month value.
	MethodFlat MethodKind = "FLAT"
	// MethodPercentOfRevenue ties each month to the revenue line.
	MethodPercentOfRevenue MethodKind = "PERCENT_OF_REVENUE"
	// MethodSeasonal projects from the baseline average, optionally shaped
	// by recorded monthly weights.
	MethodSeasonal MethodKind = "SEASONAL"
	// MethodManual marks lines the engine must never touch.
	MethodManual MethodKind = "MANUAL"
)

// Method is the closed forecast-method variant attached to each line.
// Kind selects the variant; the remaining fields only apply to the kind
// they are named for.
type Method struct {
	Kind            MethodKind                  `json:"kind"`
	FlatValue       float64                     `json:"flat_value,omitempty"`
	RevenuePercent  float64                     `json:"revenue_percent,omitempty"`
	IncreasePercent float64                     `json:"increase_percent,omitempty"`
	Weights         map[period.MonthKey]float64 `json:"weights,omitempty"`
}

// Validate rejects unknown kinds and out-of-range parameters.
func (m Method) Validate() error {
	switch m.Kind {
	case MethodFlat, MethodSeasonal, MethodManual:
	case MethodPercentOfRevenue:
		if m.RevenuePercent < 0 || m.RevenuePercent > 100 {
			return fmt.Errorf("%w: revenue percent %.2f out of range", ErrInvalidInput, m.RevenuePercent)
		}
	default:
		return fmt.Errorf("%w: unknown method kind %q", ErrInvalidInput, m.Kind)
	}
	return nil
}

// Line is one row of the P&L structure with per-month amounts. Amount
// keys are drawn exclusively from the current fiscal layout.
type Line struct {
	ID          uuid.UUID                   `json:"id"`
	Category    Category                    `json:"category"`
	SubCategory string                      `json:"sub_category"`
	Amounts     map[period.MonthKey]float64 `json:"amounts"`
	Method      Method                      `json:"method"`
}

// Clone returns a deep copy so callers can diff old against new.
func (l Line) Clone() Line {
	out := l
	out.Amounts = make(map[period.MonthKey]float64, len(l.Amounts))
	for k, v := range l.Amounts {
		out.Amounts[k] = v
	}
	if l.Method.Weights != nil {
		out.Method.Weights = make(map[period.MonthKey]float64, len(l.Method.Weights))
		for k, v := range l.Method.Weights {
			out.Method.Weights[k] = v
		}
	}
	return out
}

// Total sums the line's amounts over the given keys.
func (l Line) Total(keys []period.MonthKey) float64 {
	var sum float64
	for _, k := range keys {
		sum += l.Amounts[k]
	}
	return sum
}

// Assumptions is the caller-supplied input bundle for generation.
type Assumptions struct {
	RevenueGoal     float64            `json:"revenue_goal"`
	GrossProfitGoal float64            `json:"gross_profit_goal"`
	NetProfitGoal   float64            `json:"net_profit_goal"`
	COGSPercent     float64            `json:"cogs_percent"`
	OpexBudget      float64            `json:"opex_budget"`
	Distribution    DistributionMethod `json:"distribution"`
}

// Validate ensures the bundle is usable before generation.
func (a Assumptions) Validate() error {
	if a.RevenueGoal < 0 {
		return fmt.Errorf("%w: revenue goal must not be negative", ErrInvalidInput)
	}
	if a.COGSPercent < 0 || a.COGSPercent > 100 {
		return fmt.Errorf("%w: cogs percent %.2f out of range", ErrInvalidInput, a.COGSPercent)
	}
	if a.OpexBudget < 0 {
		return fmt.Errorf("%w: opex budget must not be negative", ErrInvalidInput)
	}
	switch a.Distribution {
	case DistributionEven, DistributionSeasonal, DistributionGrowth:
	default:
		return fmt.Errorf("%w: unknown distribution %q", ErrInvalidInput, a.Distribution)
	}
	return nil
}

// Fallback records a silent degradation to even distribution so callers
// can surface it to the user.
type Fallback struct {
	Category    Category `json:"category"`
	SubCategory string   `json:"sub_category"`
	Reason      string   `json:"reason"`
}

// GenerateResult bundles the generated line set with any fallbacks.
type GenerateResult struct {
	Lines     []Line     `json:"lines"`
	Fallbacks []Fallback `json:"fallbacks,omitempty"`
}

// Forecast is the persisted header a line set hangs off.
type Forecast struct {
	ID          uuid.UUID     `json:"id"`
	CompanyID   int64         `json:"company_id"`
	Name        string        `json:"name"`
	Bounds      period.Bounds `json:"bounds"`
	Assumptions Assumptions   `json:"assumptions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RebuildStatus enumerates async rebuild lifecycle values.
type RebuildStatus string

const (
	// RebuildPending indicates waiting to be processed.
	RebuildPending RebuildStatus = "PENDING"
	// RebuildInProgress indicates the job is executing.
	RebuildInProgress RebuildStatus = "IN_PROGRESS"
	// RebuildReady indicates the regenerated lines are persisted.
	RebuildReady RebuildStatus = "READY"
	// RebuildFailed indicates an error occurred.
	RebuildFailed RebuildStatus = "FAILED"
)

// Rebuild tracks one asynchronous regeneration request.
type Rebuild struct {
	ID         int64         `json:"id"`
	ForecastID uuid.UUID     `json:"forecast_id"`
	Status     RebuildStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

var (
	// ErrInvalidInput marks rejected caller input.
	ErrInvalidInput = errors.New("forecast: invalid input")
	// ErrEmptyForecastWindow occurs when the layout holds no forecast months.
	ErrEmptyForecastWindow = errors.New("forecast: empty forecast window")
	// ErrNotFound occurs when a forecast or line is missing.
	ErrNotFound = errors.New("forecast: not found")
	// ErrDuplicate occurs when a forecast name collides within a company.
	ErrDuplicate = errors.New("forecast: duplicate")
	// ErrRebuildNotFound occurs when a rebuild record is missing.
	ErrRebuildNotFound = errors.New("forecast: rebuild not found")
	// ErrMonthOutsideLayout occurs when an amount is keyed to a month
	// the current fiscal layout does not track.
	ErrMonthOutsideLayout = errors.New("forecast: month outside layout")
)

// CreateInput captures forecast creation input.
type CreateInput struct {
	CompanyID   int64
	Name        string
	Bounds      period.Bounds
	Assumptions Assumptions
}

// Validate ensures correctness before touching the layout.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("%w: company required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	return in.Assumptions.Validate()
}
