package forecast

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

const (
	revenueSubCategory = "Revenue"
	cogsSubCategory    = "Cost of Goods Sold"
	opexSubCategory    = "Operating Expenses"
)

// Generate produces the initial P&L line set from assumptions and a
// fiscal layout. Existing lines with a manual-override method or a
// category outside revenue/COGS/opex are carried through unchanged, so
// regenerating never clobbers manually entered rows.
func Generate(layout []period.Descriptor, a Assumptions, existing []Line) (GenerateResult, error) {
	if err := a.Validate(); err != nil {
		return GenerateResult{}, err
	}
	forecastKeys := period.Keys(layout, period.RoleForecast)
	if len(forecastKeys) == 0 {
		return GenerateResult{}, ErrEmptyForecastWindow
	}
	baselineKeys := period.Keys(layout, period.RoleBaseline)

	carried, replaced := partitionExisting(existing)
	result := GenerateResult{}

	revenueWeights, fellBack := distributionWeights(a.Distribution, forecastKeys, baselineKeys, baselineTotals(replaced, CategoryRevenue))
	if fellBack {
		result.Fallbacks = append(result.Fallbacks, Fallback{
			Category:    CategoryRevenue,
			SubCategory: revenueSubCategory,
			Reason:      "no baseline revenue data, distributed evenly",
		})
	}
	revenue := buildLine(CategoryRevenue, revenueSubCategory, a.RevenueGoal, forecastKeys, revenueWeights)
	revenue.Method = weightedMethod(a.Distribution, forecastKeys, revenueWeights)
	result.Lines = append(result.Lines, revenue)

	cogs := Line{
		ID:          uuid.New(),
		Category:    CategoryCOGS,
		SubCategory: cogsSubCategory,
		Amounts:     make(map[period.MonthKey]float64, len(forecastKeys)),
		Method:      Method{Kind: MethodPercentOfRevenue, RevenuePercent: a.COGSPercent},
	}
	for _, key := range forecastKeys {
		cogs.Amounts[key] = math.Round(revenue.Amounts[key] * a.COGSPercent / 100)
	}
	result.Lines = append(result.Lines, cogs)

	if a.OpexBudget > 0 {
		opexLines, fallbacks := generateOpex(a, forecastKeys, baselineKeys, replaced)
		result.Lines = append(result.Lines, opexLines...)
		result.Fallbacks = append(result.Fallbacks, fallbacks...)
	}

	result.Lines = append(result.Lines, carried...)
	return result, nil
}

// partitionExisting splits lines into those carried through untouched and
// those the generator replaces.
func partitionExisting(existing []Line) (carried, replaced []Line) {
	for _, line := range existing {
		if !line.Category.Forecastable() || line.Method.Kind == MethodManual {
			carried = append(carried, line.Clone())
			continue
		}
		replaced = append(replaced, line)
	}
	return carried, replaced
}

// generateOpex spreads the opex budget across known sub-categories in
// proportion to their baseline share, evenly when no baseline exists.
func generateOpex(a Assumptions, forecastKeys, baselineKeys []period.MonthKey, replaced []Line) ([]Line, []Fallback) {
	subs, subBaselines := opexSubCategories(replaced, baselineKeys)
	if len(subs) == 0 {
		subs = []string{opexSubCategory}
		subBaselines = map[string]float64{}
	}

	budgets := splitBudget(a.OpexBudget, subs, subBaselines)

	var lines []Line
	var fallbacks []Fallback
	for _, sub := range subs {
		weights, fellBack := distributionWeights(a.Distribution, forecastKeys, baselineKeys, baselineAmountsFor(replaced, CategoryOpex, sub))
		if fellBack {
			fallbacks = append(fallbacks, Fallback{
				Category:    CategoryOpex,
				SubCategory: sub,
				Reason:      "no baseline data for sub-category, distributed evenly",
			})
		}
		line := buildLine(CategoryOpex, sub, budgets[sub], forecastKeys, weights)
		line.Method = weightedMethod(a.Distribution, forecastKeys, weights)
		lines = append(lines, line)
	}
	return lines, fallbacks
}

// opexSubCategories returns the opex sub-category names in deterministic
// order together with each sub-category's baseline-window total.
func opexSubCategories(replaced []Line, baselineKeys []period.MonthKey) ([]string, map[string]float64) {
	totals := make(map[string]float64)
	var subs []string
	for _, line := range replaced {
		if line.Category != CategoryOpex {
			continue
		}
		if _, seen := totals[line.SubCategory]; !seen {
			subs = append(subs, line.SubCategory)
		}
		totals[line.SubCategory] += line.Total(baselineKeys)
	}
	sort.Strings(subs)
	return subs, totals
}

// splitBudget apportions an annual budget across sub-categories by their
// baseline share. Amounts round to whole units; the final sub-category
// absorbs the remainder so the split reconciles exactly.
func splitBudget(budget float64, subs []string, baselines map[string]float64) map[string]float64 {
	var total float64
	for _, sub := range subs {
		if baselines[sub] > 0 {
			total += baselines[sub]
		}
	}
	budgets := make(map[string]float64, len(subs))
	var allocated float64
	for i, sub := range subs {
		var share float64
		if total > 0 {
			share = math.Max(baselines[sub], 0) / total
		} else {
			share = 1 / float64(len(subs))
		}
		amount := math.Round(budget * share)
		if i == len(subs)-1 {
			amount = budget - allocated
		}
		budgets[sub] = amount
		allocated += amount
	}
	return budgets
}

// baselineTotals sums baseline amounts per month across every replaced
// line of the given category.
func baselineTotals(replaced []Line, cat Category) map[period.MonthKey]float64 {
	totals := make(map[period.MonthKey]float64)
	for _, line := range replaced {
		if line.Category != cat {
			continue
		}
		for key, amount := range line.Amounts {
			totals[key] += amount
		}
	}
	return totals
}

func baselineAmountsFor(replaced []Line, cat Category, sub string) map[period.MonthKey]float64 {
	totals := make(map[period.MonthKey]float64)
	for _, line := range replaced {
		if line.Category != cat || line.SubCategory != sub {
			continue
		}
		for key, amount := range line.Amounts {
			totals[key] += amount
		}
	}
	return totals
}

// distributionWeights returns one normalized weight per forecast month.
// Seasonal weighting maps forecast months onto baseline months by
// ordinal position, cycling when the windows differ in length. The
// second return reports a fallback to even distribution.
func distributionWeights(method DistributionMethod, forecastKeys, baselineKeys []period.MonthKey, baselineAmounts map[period.MonthKey]float64) ([]float64, bool) {
	n := len(forecastKeys)
	switch method {
	case DistributionGrowth:
		weights := make([]float64, n)
		total := float64(n*(n+1)) / 2
		for i := range weights {
			weights[i] = float64(i+1) / total
		}
		return weights, false
	case DistributionSeasonal:
		if len(baselineKeys) == 0 {
			return evenWeights(n), true
		}
		var total float64
		for _, key := range baselineKeys {
			if baselineAmounts[key] > 0 {
				total += baselineAmounts[key]
			}
		}
		if total <= 0 {
			return evenWeights(n), true
		}
		weights := make([]float64, n)
		for i := range weights {
			ref := baselineKeys[i%len(baselineKeys)]
			weights[i] = math.Max(baselineAmounts[ref], 0) / total
		}
		normalize(weights)
		return weights, false
	default:
		return evenWeights(n), false
	}
}

func evenWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	return weights
}

func normalize(weights []float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

// buildLine distributes total across the forecast months by weight.
// Amounts round to whole units and the final month absorbs the rounding
// remainder so the line's annual total equals the input exactly.
func buildLine(cat Category, sub string, total float64, forecastKeys []period.MonthKey, weights []float64) Line {
	line := Line{
		ID:          uuid.New(),
		Category:    cat,
		SubCategory: sub,
		Amounts:     make(map[period.MonthKey]float64, len(forecastKeys)),
	}
	var allocated float64
	for i, key := range forecastKeys {
		amount := math.Round(total * weights[i])
		if i == len(forecastKeys)-1 {
			amount = total - allocated
		}
		line.Amounts[key] = amount
		allocated += amount
	}
	return line
}

// weightedMethod records how a generated line was distributed. Generated
// lines are goal-based, so they carry the flat method and stay put during
// recalculation; the weights preserve the shape for later seasonal edits.
func weightedMethod(method DistributionMethod, forecastKeys []period.MonthKey, weights []float64) Method {
	switch method {
	case DistributionSeasonal, DistributionGrowth:
		recorded := make(map[period.MonthKey]float64, len(forecastKeys))
		for i, key := range forecastKeys {
			recorded[key] = weights[i]
		}
		return Method{Kind: MethodFlat, Weights: recorded}
	default:
		return Method{Kind: MethodFlat}
	}
}

// Describe renders a method for logs and exports.
func (m Method) Describe() string {
	switch m.Kind {
	case MethodFlat:
		return fmt.Sprintf("flat %.0f", m.FlatValue)
	case MethodPercentOfRevenue:
		return fmt.Sprintf("%.1f%% of revenue", m.RevenuePercent)
	case MethodSeasonal:
		if len(m.Weights) > 0 {
			return "seasonal"
		}
		return "seasonal (flat)"
	case MethodManual:
		return "manual"
	}
	return string(m.Kind)
}
