package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

// Repo exposes the persistence operations the service requires.
type Repo interface {
	InsertForecast(ctx context.Context, f Forecast) (Forecast, error)
	GetForecast(ctx context.Context, id uuid.UUID) (Forecast, error)
	ListForecasts(ctx context.Context, companyID int64) ([]Forecast, error)
	UpdateAssumptions(ctx context.Context, id uuid.UUID, a Assumptions) error
	ReplaceLines(ctx context.Context, forecastID uuid.UUID, lines []Line) error
	ListLines(ctx context.Context, forecastID uuid.UUID) ([]Line, error)
	UpdateLine(ctx context.Context, forecastID uuid.UUID, line Line) error
	InsertRebuild(ctx context.Context, forecastID uuid.UUID) (Rebuild, error)
	GetRebuild(ctx context.Context, id int64) (Rebuild, error)
	UpdateRebuildStatus(ctx context.Context, id int64, status RebuildStatus, errMsg string) error
	ListForecastIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RebuildEnqueuer submits rebuild jobs to the queue.
type RebuildEnqueuer interface {
	EnqueueRebuild(ctx context.Context, rebuildID int64) error
}

// View is the computed read model for one forecast: header, fiscal
// layout, and the current line set with amounts pruned to the layout.
type View struct {
	Forecast Forecast            `json:"forecast"`
	Layout   []period.Descriptor `json:"layout"`
	Lines    []Line              `json:"lines"`
}

// Service coordinates forecast generation, recalculation, and rebuilds.
type Service struct {
	repo   Repo
	cache  *Cache
	queue  RebuildEnqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the service.
func NewService(repo Repo, cache *Cache, queue RebuildEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, queue: queue, logger: logger, now: time.Now}
}

// Create validates input, generates the initial line set, and persists
// the forecast.
func (s *Service) Create(ctx context.Context, input CreateInput) (View, []Fallback, error) {
	if err := input.Validate(); err != nil {
		return View{}, nil, err
	}
	layout, err := period.BuildLayout(input.Bounds)
	if err != nil {
		return View{}, nil, err
	}
	result, err := Generate(layout, input.Assumptions, nil)
	if err != nil {
		return View{}, nil, err
	}
	for _, fb := range result.Fallbacks {
		s.logger.Warn("distribution fallback",
			slog.String("category", string(fb.Category)),
			slog.String("sub_category", fb.SubCategory),
			slog.String("reason", fb.Reason))
	}

	f := Forecast{
		ID:          uuid.New(),
		CompanyID:   input.CompanyID,
		Name:        input.Name,
		Bounds:      input.Bounds,
		Assumptions: input.Assumptions,
	}
	f, err = s.repo.InsertForecast(ctx, f)
	if err != nil {
		return View{}, nil, err
	}
	if err := s.repo.ReplaceLines(ctx, f.ID, result.Lines); err != nil {
		return View{}, nil, err
	}
	if err := s.cache.Bump(ctx, f.ID); err != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
	return View{Forecast: f, Layout: layout, Lines: result.Lines}, result.Fallbacks, nil
}

// Get assembles the cached forecast view, loading header and lines
// concurrently on a cache miss.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	var view View
	err := s.cache.FetchView(ctx, id, &view, func(ctx context.Context) (interface{}, error) {
		return s.loadView(ctx, id)
	})
	return view, err
}

func (s *Service) loadView(ctx context.Context, id uuid.UUID) (View, error) {
	var (
		f     Forecast
		lines []Line
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		f, err = s.repo.GetForecast(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		lines, err = s.repo.ListLines(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}
	layout, err := period.BuildLayout(f.Bounds)
	if err != nil {
		return View{}, err
	}
	return View{Forecast: f, Layout: layout, Lines: pruneAmounts(lines, layout)}, nil
}

// List enumerates forecasts by company.
func (s *Service) List(ctx context.Context, companyID int64) ([]Forecast, error) {
	return s.repo.ListForecasts(ctx, companyID)
}

// Recalculate reruns the engine over the stored line set and persists
// the result.
func (s *Service) Recalculate(ctx context.Context, id uuid.UUID) (View, error) {
	view, err := s.loadView(ctx, id)
	if err != nil {
		return View{}, err
	}
	baselineKeys := period.Keys(view.Layout, period.RoleBaseline)
	forecastKeys := period.Keys(view.Layout, period.RoleForecast)
	view.Lines = Recalculate(view.Lines, baselineKeys, forecastKeys)
	if err := s.repo.ReplaceLines(ctx, id, view.Lines); err != nil {
		return View{}, err
	}
	if err := s.cache.Bump(ctx, id); err != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
	return view, nil
}

// OverrideInput carries a manual line edit.
type OverrideInput struct {
	LineID  uuid.UUID
	Amounts map[period.MonthKey]float64
}

// OverrideLine applies manual forecast-month amounts to one line and
// tags it manual so recalculation never touches it again. Amounts keyed
// outside the forecast window are rejected.
func (s *Service) OverrideLine(ctx context.Context, forecastID uuid.UUID, input OverrideInput) (Line, error) {
	view, err := s.loadView(ctx, forecastID)
	if err != nil {
		return Line{}, err
	}
	forecastKeys := period.Keys(view.Layout, period.RoleForecast)
	allowed := make(map[period.MonthKey]bool, len(forecastKeys))
	for _, key := range forecastKeys {
		allowed[key] = true
	}
	for key := range input.Amounts {
		if !allowed[key] {
			return Line{}, fmt.Errorf("%w: month %s", ErrMonthOutsideLayout, key)
		}
	}

	for _, line := range view.Lines {
		if line.ID != input.LineID {
			continue
		}
		edited := line.Clone()
		for key, amount := range input.Amounts {
			edited.Amounts[key] = amount
		}
		edited.Method = Method{Kind: MethodManual}
		if err := s.repo.UpdateLine(ctx, forecastID, edited); err != nil {
			return Line{}, err
		}
		if err := s.cache.Bump(ctx, forecastID); err != nil {
			s.logger.Warn("cache bump", slog.Any("error", err))
		}
		return edited, nil
	}
	return Line{}, fmt.Errorf("%w: line %s", ErrNotFound, input.LineID)
}

// RequestRebuild records a pending rebuild and enqueues the job.
func (s *Service) RequestRebuild(ctx context.Context, forecastID uuid.UUID, assumptions *Assumptions) (Rebuild, error) {
	if _, err := s.repo.GetForecast(ctx, forecastID); err != nil {
		return Rebuild{}, err
	}
	if assumptions != nil {
		if err := assumptions.Validate(); err != nil {
			return Rebuild{}, err
		}
		if err := s.repo.UpdateAssumptions(ctx, forecastID, *assumptions); err != nil {
			return Rebuild{}, err
		}
	}
	rebuild, err := s.repo.InsertRebuild(ctx, forecastID)
	if err != nil {
		return Rebuild{}, err
	}
	if s.queue != nil {
		if err := s.queue.EnqueueRebuild(ctx, rebuild.ID); err != nil {
			_ = s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildFailed, err.Error())
			return Rebuild{}, fmt.Errorf("forecast: enqueue rebuild: %w", err)
		}
	}
	return rebuild, nil
}

// GetRebuild returns rebuild metadata by id.
func (s *Service) GetRebuild(ctx context.Context, id int64) (Rebuild, error) {
	return s.repo.GetRebuild(ctx, id)
}

// ProcessRebuild regenerates a forecast's line set from its stored
// assumptions, preserving manual and foreign-category lines.
func (s *Service) ProcessRebuild(ctx context.Context, rebuildID int64) error {
	rebuild, err := s.repo.GetRebuild(ctx, rebuildID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildInProgress, ""); err != nil {
		return err
	}

	view, err := s.loadView(ctx, rebuild.ForecastID)
	if err != nil {
		_ = s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildFailed, err.Error())
		return err
	}
	result, err := Generate(view.Layout, view.Forecast.Assumptions, view.Lines)
	if err != nil {
		_ = s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildFailed, err.Error())
		return err
	}
	if err := s.repo.ReplaceLines(ctx, rebuild.ForecastID, result.Lines); err != nil {
		_ = s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildFailed, err.Error())
		return err
	}
	if err := s.repo.UpdateRebuildStatus(ctx, rebuild.ID, RebuildReady, ""); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx, rebuild.ForecastID); err != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
	return nil
}

// RecalculateSweep reruns the engine over every stored forecast. Errors
// are logged per forecast so one bad record cannot stall the sweep.
func (s *Service) RecalculateSweep(ctx context.Context) error {
	ids, err := s.repo.ListForecastIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.Recalculate(ctx, id); err != nil {
			s.logger.Error("recalculate sweep", slog.String("forecast_id", id.String()), slog.Any("error", err))
		}
	}
	return nil
}

// pruneAmounts drops amount keys that are not part of the current
// layout.
func pruneAmounts(lines []Line, layout []period.Descriptor) []Line {
	known := make(map[period.MonthKey]bool, len(layout))
	for _, d := range layout {
		known[d.Key] = true
	}
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		next := line.Clone()
		for key := range next.Amounts {
			if !known[key] {
				delete(next.Amounts, key)
			}
		}
		out = append(out, next)
	}
	return out
}
