package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

func mustLayout(t *testing.T, b period.Bounds) []period.Descriptor {
	t.Helper()
	layout, err := period.BuildLayout(b)
	require.NoError(t, err)
	return layout
}

func fiscalYearLayout(t *testing.T) []period.Descriptor {
	return mustLayout(t, period.Bounds{
		ActualStart:   "2024-07",
		ActualEnd:     "2024-12",
		ForecastStart: "2025-01",
		ForecastEnd:   "2025-06",
	})
}

func TestGenerateEvenRevenueReconciles(t *testing.T) {
	layout := fiscalYearLayout(t)
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  120000,
		COGSPercent:  35,
		Distribution: DistributionEven,
	}, nil)
	require.NoError(t, err)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	forecastKeys := period.Keys(layout, period.RoleForecast)
	require.Len(t, forecastKeys, 6)
	for _, key := range forecastKeys {
		assert.Equal(t, float64(20000), revenue.Amounts[key])
	}
	assert.Equal(t, float64(120000), revenue.Total(forecastKeys))
}

func TestGenerateRoundingRemainderGoesToLastMonth(t *testing.T) {
	layout := mustLayout(t, period.Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-06",
		ForecastStart: "2024-07",
		ForecastEnd:   "2025-06",
	})
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  100000,
		Distribution: DistributionEven,
	}, nil)
	require.NoError(t, err)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	forecastKeys := period.Keys(layout, period.RoleForecast)
	require.Len(t, forecastKeys, 12)
	for _, key := range forecastKeys[:11] {
		assert.Equal(t, float64(8333), revenue.Amounts[key])
	}
	assert.Equal(t, float64(8337), revenue.Amounts[forecastKeys[11]])
	assert.Equal(t, float64(100000), revenue.Total(forecastKeys))
}

func TestGenerateCOGSCoupledToRevenue(t *testing.T) {
	layout := fiscalYearLayout(t)
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  60000,
		COGSPercent:  35,
		Distribution: DistributionEven,
	}, nil)
	require.NoError(t, err)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	cogs := findLine(t, result.Lines, CategoryCOGS)
	for _, key := range period.Keys(layout, period.RoleForecast) {
		assert.Equal(t, float64(10000), revenue.Amounts[key])
		assert.Equal(t, float64(3500), cogs.Amounts[key])
	}
	assert.Equal(t, MethodPercentOfRevenue, cogs.Method.Kind)
	assert.Equal(t, float64(35), cogs.Method.RevenuePercent)
}

func TestGenerateGrowthCurve(t *testing.T) {
	layout := mustLayout(t, period.Bounds{
		ActualStart:   "2024-10",
		ActualEnd:     "2024-12",
		ForecastStart: "2025-01",
		ForecastEnd:   "2025-03",
	})
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  60000,
		Distribution: DistributionGrowth,
	}, nil)
	require.NoError(t, err)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	keys := period.Keys(layout, period.RoleForecast)
	assert.Equal(t, float64(10000), revenue.Amounts[keys[0]])
	assert.Equal(t, float64(20000), revenue.Amounts[keys[1]])
	assert.Equal(t, float64(30000), revenue.Amounts[keys[2]])
	assert.Empty(t, result.Fallbacks)
}

func TestGenerateSeasonalFromBaseline(t *testing.T) {
	layout := mustLayout(t, period.Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-03",
		ForecastStart: "2024-04",
		ForecastEnd:   "2024-06",
		BaselineStart: "2024-01",
		BaselineEnd:   "2024-03",
	})
	existing := []Line{{
		Category:    CategoryRevenue,
		SubCategory: "Revenue",
		Amounts: map[period.MonthKey]float64{
			"2024-01": 100,
			"2024-02": 200,
			"2024-03": 300,
		},
		Method: Method{Kind: MethodFlat},
	}}
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  6000,
		Distribution: DistributionSeasonal,
	}, existing)
	require.NoError(t, err)
	require.Empty(t, result.Fallbacks)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	keys := period.Keys(layout, period.RoleForecast)
	assert.Equal(t, float64(1000), revenue.Amounts[keys[0]])
	assert.Equal(t, float64(2000), revenue.Amounts[keys[1]])
	assert.Equal(t, float64(3000), revenue.Amounts[keys[2]])
}

func TestGenerateSeasonalFallbackIsFlagged(t *testing.T) {
	layout := fiscalYearLayout(t)
	seasonal, err := Generate(layout, Assumptions{
		RevenueGoal:  120000,
		Distribution: DistributionSeasonal,
	}, nil)
	require.NoError(t, err)
	even, err := Generate(layout, Assumptions{
		RevenueGoal:  120000,
		Distribution: DistributionEven,
	}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, seasonal.Fallbacks)
	assert.Equal(t, CategoryRevenue, seasonal.Fallbacks[0].Category)
	assert.Equal(t,
		findLine(t, even.Lines, CategoryRevenue).Amounts,
		findLine(t, seasonal.Lines, CategoryRevenue).Amounts)
}

func TestGenerateOpexSplitByBaselineShare(t *testing.T) {
	layout := mustLayout(t, period.Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-02",
		ForecastStart: "2024-03",
		ForecastEnd:   "2024-04",
		BaselineStart: "2024-01",
		BaselineEnd:   "2024-02",
	})
	existing := []Line{
		{
			Category:    CategoryOpex,
			SubCategory: "Rent",
			Amounts:     map[period.MonthKey]float64{"2024-01": 300, "2024-02": 300},
			Method:      Method{Kind: MethodFlat},
		},
		{
			Category:    CategoryOpex,
			SubCategory: "Wages",
			Amounts:     map[period.MonthKey]float64{"2024-01": 900, "2024-02": 900},
			Method:      Method{Kind: MethodFlat},
		},
	}
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  10000,
		OpexBudget:   8000,
		Distribution: DistributionEven,
	}, existing)
	require.NoError(t, err)

	forecastKeys := period.Keys(layout, period.RoleForecast)
	rent := findSubCategory(t, result.Lines, CategoryOpex, "Rent")
	wages := findSubCategory(t, result.Lines, CategoryOpex, "Wages")
	// Rent held 25% of baseline opex, wages 75%.
	assert.Equal(t, float64(2000), rent.Total(forecastKeys))
	assert.Equal(t, float64(6000), wages.Total(forecastKeys))
	assert.Equal(t, float64(8000), rent.Total(forecastKeys)+wages.Total(forecastKeys))
}

func TestGenerateCarriesManualAndForeignLines(t *testing.T) {
	layout := fiscalYearLayout(t)
	manual := Line{
		Category:    CategoryOpex,
		SubCategory: "Consulting",
		Amounts:     map[period.MonthKey]float64{"2025-01": 1234},
		Method:      Method{Kind: MethodManual},
	}
	other := Line{
		Category:    Category("OTHER_INCOME"),
		SubCategory: "Interest",
		Amounts:     map[period.MonthKey]float64{"2025-02": 55},
		Method:      Method{Kind: MethodFlat},
	}
	result, err := Generate(layout, Assumptions{
		RevenueGoal:  12000,
		Distribution: DistributionEven,
	}, []Line{manual, other})
	require.NoError(t, err)

	carriedManual := findSubCategory(t, result.Lines, CategoryOpex, "Consulting")
	assert.Equal(t, manual.Amounts, carriedManual.Amounts)
	assert.Equal(t, MethodManual, carriedManual.Method.Kind)

	carriedOther := findSubCategory(t, result.Lines, Category("OTHER_INCOME"), "Interest")
	assert.Equal(t, other.Amounts, carriedOther.Amounts)
}

func TestGenerateEmptyForecastWindow(t *testing.T) {
	layout := []period.Descriptor{{Key: "2024-01", Role: period.RoleActual}}
	_, err := Generate(layout, Assumptions{RevenueGoal: 1000, Distribution: DistributionEven}, nil)
	assert.ErrorIs(t, err, ErrEmptyForecastWindow)
}

func TestGenerateRejectsBadAssumptions(t *testing.T) {
	layout := fiscalYearLayout(t)
	cases := []Assumptions{
		{RevenueGoal: -1, Distribution: DistributionEven},
		{RevenueGoal: 1000, COGSPercent: 120, Distribution: DistributionEven},
		{RevenueGoal: 1000, Distribution: DistributionMethod("WEEKLY")},
	}
	for _, a := range cases {
		_, err := Generate(layout, a, nil)
		assert.Error(t, err)
	}
}

func TestGenerateEndToEndScenario(t *testing.T) {
	layout := fiscalYearLayout(t)
	require.Len(t, layout, 12)
	assert.Empty(t, period.Keys(layout, period.RoleBaseline))

	result, err := Generate(layout, Assumptions{
		RevenueGoal:  60000,
		COGSPercent:  40,
		Distribution: DistributionEven,
	}, nil)
	require.NoError(t, err)

	revenue := findLine(t, result.Lines, CategoryRevenue)
	cogs := findLine(t, result.Lines, CategoryCOGS)
	forecastKeys := period.Keys(layout, period.RoleForecast)
	require.Len(t, forecastKeys, 6)
	for _, key := range forecastKeys {
		assert.Equal(t, float64(10000), revenue.Amounts[key])
		assert.Equal(t, float64(4000), cogs.Amounts[key])
	}
}

func findLine(t *testing.T, lines []Line, cat Category) Line {
	t.Helper()
	for _, line := range lines {
		if line.Category == cat {
			return line
		}
	}
	t.Fatalf("no line with category %s", cat)
	return Line{}
}

func findSubCategory(t *testing.T, lines []Line, cat Category, sub string) Line {
	t.Helper()
	for _, line := range lines {
		if line.Category == cat && line.SubCategory == sub {
			return line
		}
	}
	t.Fatalf("no %s line with sub-category %s", cat, sub)
	return Line{}
}
