package period

import (
	"errors"
	"fmt"
	"time"
)

// Role tags what a month in the layout represents.
type Role string

const (
	// RoleActual marks months with closed-out transactional data.
	RoleActual Role = "ACTUAL"
	// RoleBaseline marks the historical reference window used for
	// seasonal shape. Baseline wins over actual when windows overlap.
	RoleBaseline Role = "BASELINE"
	// RoleForecast marks months receiving projected amounts.
	RoleForecast Role = "FORECAST"
)

// ErrInvalidRange indicates a start boundary after its end boundary.
var ErrInvalidRange = errors.New("period: invalid range")

// Descriptor is one month column of the fiscal layout.
type Descriptor struct {
	Key     MonthKey `json:"key"`
	Role    Role     `json:"role"`
	Ordinal int      `json:"ordinal"`
}

// Bounds carries the boundary months a layout is computed from. The
// baseline pair is optional; when supplied both ends are required.
type Bounds struct {
	ActualStart   MonthKey `json:"actual_start"`
	ActualEnd     MonthKey `json:"actual_end"`
	ForecastStart MonthKey `json:"forecast_start"`
	ForecastEnd   MonthKey `json:"forecast_end"`
	BaselineStart MonthKey `json:"baseline_start,omitempty"`
	BaselineEnd   MonthKey `json:"baseline_end,omitempty"`
}

// HasBaseline reports whether a baseline window was supplied.
func (b Bounds) HasBaseline() bool {
	return b.BaselineStart != "" || b.BaselineEnd != ""
}

type window struct {
	start, end time.Time
	set        bool
}

func (w window) contains(t time.Time) bool {
	return w.set && !t.Before(w.start) && !t.After(w.end)
}

func parseWindow(name string, start, end MonthKey) (window, error) {
	if start == "" && end == "" {
		return window{}, nil
	}
	if start == "" || end == "" {
		return window{}, fmt.Errorf("%w: %s window requires both boundaries", ErrInvalidRange, name)
	}
	s, err := ParseMonth(start)
	if err != nil {
		return window{}, err
	}
	e, err := ParseMonth(end)
	if err != nil {
		return window{}, err
	}
	if s.After(e) {
		return window{}, fmt.Errorf("%w: %s start %s after end %s", ErrInvalidRange, name, start, end)
	}
	return window{start: s, end: e, set: true}, nil
}

// BuildLayout converts boundary months into the canonical ordered month
// layout. Months covered by none of the windows are dropped. The result
// is a pure function of the bounds.
func BuildLayout(b Bounds) ([]Descriptor, error) {
	actual, err := parseWindow("actual", b.ActualStart, b.ActualEnd)
	if err != nil {
		return nil, err
	}
	if !actual.set {
		return nil, fmt.Errorf("%w: actual window required", ErrInvalidRange)
	}
	forecast, err := parseWindow("forecast", b.ForecastStart, b.ForecastEnd)
	if err != nil {
		return nil, err
	}
	if !forecast.set {
		return nil, fmt.Errorf("%w: forecast window required", ErrInvalidRange)
	}
	baseline, err := parseWindow("baseline", b.BaselineStart, b.BaselineEnd)
	if err != nil {
		return nil, err
	}

	earliest, latest := actual.start, actual.end
	for _, w := range []window{forecast, baseline} {
		if !w.set {
			continue
		}
		if w.start.Before(earliest) {
			earliest = w.start
		}
		if w.end.After(latest) {
			latest = w.end
		}
	}

	var layout []Descriptor
	for _, month := range enumerateMonths(earliest, latest) {
		var role Role
		switch {
		case baseline.contains(month):
			role = RoleBaseline
		case actual.contains(month):
			role = RoleActual
		case forecast.contains(month):
			role = RoleForecast
		default:
			continue
		}
		layout = append(layout, Descriptor{Key: FormatMonth(month), Role: role, Ordinal: len(layout)})
	}
	return layout, nil
}

// Keys returns the month keys of a layout carrying the given role, in
// layout order.
func Keys(layout []Descriptor, role Role) []MonthKey {
	var keys []MonthKey
	for _, d := range layout {
		if d.Role == role {
			keys = append(keys, d.Key)
		}
	}
	return keys
}

// ContainsKey reports whether key appears anywhere in the layout.
func ContainsKey(layout []Descriptor, key MonthKey) bool {
	for _, d := range layout {
		if d.Key == key {
			return true
		}
	}
	return false
}
