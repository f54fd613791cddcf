package period

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildLayoutContiguous(t *testing.T) {
	layout, err := BuildLayout(Bounds{
		ActualStart:   "2024-07",
		ActualEnd:     "2024-12",
		ForecastStart: "2025-01",
		ForecastEnd:   "2025-06",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layout) != 12 {
		t.Fatalf("expected 12 months, got %d", len(layout))
	}
	for i := 1; i < len(layout); i++ {
		next, err := NextMonth(layout[i-1].Key)
		if err != nil {
			t.Fatalf("next month: %v", err)
		}
		if layout[i].Key != next {
			t.Fatalf("gap between %s and %s", layout[i-1].Key, layout[i].Key)
		}
		if layout[i].Ordinal != i {
			t.Fatalf("expected ordinal %d, got %d", i, layout[i].Ordinal)
		}
	}
	for i, d := range layout {
		want := RoleActual
		if i >= 6 {
			want = RoleForecast
		}
		if d.Role != want {
			t.Fatalf("month %s: expected role %s, got %s", d.Key, want, d.Role)
		}
	}
}

func TestBuildLayoutDeterministic(t *testing.T) {
	bounds := Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-06",
		ForecastStart: "2024-07",
		ForecastEnd:   "2024-12",
		BaselineStart: "2024-03",
		BaselineEnd:   "2024-05",
	}
	first, err := BuildLayout(bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := BuildLayout(bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical layouts for identical bounds")
	}
}

func TestBuildLayoutBaselineWinsOverActual(t *testing.T) {
	layout, err := BuildLayout(Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-06",
		ForecastStart: "2024-07",
		ForecastEnd:   "2024-09",
		BaselineStart: "2024-04",
		BaselineEnd:   "2024-06",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range layout {
		if d.Key >= "2024-04" && d.Key <= "2024-06" && d.Role != RoleBaseline {
			t.Fatalf("month %s: expected baseline, got %s", d.Key, d.Role)
		}
	}
}

func TestBuildLayoutDropsUntrackedMonths(t *testing.T) {
	// A gap between actuals and forecast belongs to no window.
	layout, err := BuildLayout(Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-03",
		ForecastStart: "2024-06",
		ForecastEnd:   "2024-08",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layout) != 6 {
		t.Fatalf("expected 6 tracked months, got %d", len(layout))
	}
	for _, d := range layout {
		if d.Key == "2024-04" || d.Key == "2024-05" {
			t.Fatalf("untracked month %s should be dropped", d.Key)
		}
	}
}

func TestBuildLayoutInvalidRange(t *testing.T) {
	cases := map[string]Bounds{
		"actual reversed": {
			ActualStart: "2024-06", ActualEnd: "2024-01",
			ForecastStart: "2024-07", ForecastEnd: "2024-12",
		},
		"forecast reversed": {
			ActualStart: "2024-01", ActualEnd: "2024-06",
			ForecastStart: "2024-12", ForecastEnd: "2024-07",
		},
		"baseline half open": {
			ActualStart: "2024-01", ActualEnd: "2024-06",
			ForecastStart: "2024-07", ForecastEnd: "2024-12",
			BaselineStart: "2024-02",
		},
	}
	for name, bounds := range cases {
		if _, err := BuildLayout(bounds); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%s: expected ErrInvalidRange, got %v", name, err)
		}
	}
}

func TestKeys(t *testing.T) {
	layout, err := BuildLayout(Bounds{
		ActualStart:   "2024-01",
		ActualEnd:     "2024-02",
		ForecastStart: "2024-03",
		ForecastEnd:   "2024-05",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	forecast := Keys(layout, RoleForecast)
	if len(forecast) != 3 || forecast[0] != "2024-03" || forecast[2] != "2024-05" {
		t.Fatalf("unexpected forecast keys: %v", forecast)
	}
	if got := Keys(layout, RoleBaseline); got != nil {
		t.Fatalf("expected no baseline keys, got %v", got)
	}
}
