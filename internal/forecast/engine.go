package forecast

import (
	"math"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

// Recalculate recomputes forecast-month amounts for every line whose
// method calls for it, leaving actual and baseline months untouched. It
// returns a fresh line set and never mutates the slice handed in, so
// callers can diff old against new or retry.
//
// Revenue lines settle first; percent-of-revenue lines then derive from
// the recalculated revenue, not the amounts handed in.
func Recalculate(lines []Line, baselineKeys, forecastKeys []period.MonthKey) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		next := line.Clone()
		if next.Category == CategoryRevenue {
			recalcLine(&next, nil, baselineKeys, forecastKeys)
		}
		out = append(out, next)
	}
	revenue := revenueByMonth(out, forecastKeys)
	for i := range out {
		if out[i].Category.Forecastable() && out[i].Category != CategoryRevenue {
			recalcLine(&out[i], revenue, baselineKeys, forecastKeys)
		}
	}
	return out
}

func recalcLine(line *Line, revenue map[period.MonthKey]float64, baselineKeys, forecastKeys []period.MonthKey) {
	switch line.Method.Kind {
	case MethodManual:
		// Never auto-recalculated.
	case MethodFlat:
		if line.Method.FlatValue > 0 {
			for _, key := range forecastKeys {
				line.Amounts[key] = math.Round(line.Method.FlatValue)
			}
		}
	case MethodPercentOfRevenue:
		for _, key := range forecastKeys {
			line.Amounts[key] = math.Round(revenue[key] * line.Method.RevenuePercent / 100)
		}
	case MethodSeasonal:
		recalcSeasonal(line, baselineKeys, forecastKeys)
	}
}

// recalcSeasonal projects from the line's baseline-month average grown
// by the stored percentage increase. A recorded seasonal shape spreads
// the projected total across months; otherwise every forecast month
// receives the grown average flat.
func recalcSeasonal(line *Line, baselineKeys, forecastKeys []period.MonthKey) {
	var baseAverage float64
	if len(baselineKeys) > 0 {
		var sum float64
		for _, key := range baselineKeys {
			sum += line.Amounts[key]
		}
		baseAverage = sum / float64(len(baselineKeys))
	}
	grown := baseAverage * (1 + line.Method.IncreasePercent/100)

	if len(line.Method.Weights) == 0 {
		for _, key := range forecastKeys {
			line.Amounts[key] = math.Round(grown)
		}
		return
	}

	weights := make([]float64, len(forecastKeys))
	for i, key := range forecastKeys {
		weights[i] = math.Max(line.Method.Weights[key], 0)
	}
	normalize(weights)

	total := grown * float64(len(forecastKeys))
	var allocated float64
	for i, key := range forecastKeys {
		amount := math.Round(total * weights[i])
		if i == len(forecastKeys)-1 {
			amount = math.Round(total) - allocated
		}
		line.Amounts[key] = amount
		allocated += amount
	}
}

// revenueByMonth sums the recalculated revenue lines per forecast month
// so percent-of-revenue lines stay mechanically tied to revenue even
// when revenue itself moved in the same pass.
func revenueByMonth(lines []Line, forecastKeys []period.MonthKey) map[period.MonthKey]float64 {
	totals := make(map[period.MonthKey]float64, len(forecastKeys))
	for _, line := range lines {
		if line.Category != CategoryRevenue {
			continue
		}
		for _, key := range forecastKeys {
			totals[key] += line.Amounts[key]
		}
	}
	return totals
}
