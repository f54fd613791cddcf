package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisdomcg/wisdom-forecast/internal/period"
	"github.com/wisdomcg/wisdom-forecast/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository persists forecast headers, lines, and rebuild records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertForecast stores a new forecast header.
func (r *Repository) InsertForecast(ctx context.Context, f Forecast) (Forecast, error) {
	assumptions, err := json.Marshal(f.Assumptions)
	if err != nil {
		return Forecast{}, fmt.Errorf("forecast: marshal assumptions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO forecasts (
			id, company_id, name,
			actual_start, actual_end, forecast_start, forecast_end,
			baseline_start, baseline_end, assumptions
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		f.ID, f.CompanyID, f.Name,
		f.Bounds.ActualStart, f.Bounds.ActualEnd, f.Bounds.ForecastStart, f.Bounds.ForecastEnd,
		nullableKey(f.Bounds.BaselineStart), nullableKey(f.Bounds.BaselineEnd), assumptions,
	)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Forecast{}, fmt.Errorf("%w: forecast %q for company %d", ErrDuplicate, f.Name, f.CompanyID)
		}
		return Forecast{}, fmt.Errorf("forecast: insert: %w", err)
	}
	return f, nil
}

// GetForecast loads a header by id.
func (r *Repository) GetForecast(ctx context.Context, id uuid.UUID) (Forecast, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, company_id, name,
		       actual_start, actual_end, forecast_start, forecast_end,
		       COALESCE(baseline_start, ''), COALESCE(baseline_end, ''),
		       assumptions, created_at, updated_at
		FROM forecasts WHERE id = $1`, id)
	f, err := scanForecast(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Forecast{}, fmt.Errorf("%w: forecast %s", ErrNotFound, id)
		}
		return Forecast{}, fmt.Errorf("forecast: get: %w", err)
	}
	return f, nil
}

// ListForecasts returns every forecast for a company, newest first.
func (r *Repository) ListForecasts(ctx context.Context, companyID int64) ([]Forecast, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name,
		       actual_start, actual_end, forecast_start, forecast_end,
		       COALESCE(baseline_start, ''), COALESCE(baseline_end, ''),
		       assumptions, created_at, updated_at
		FROM forecasts WHERE company_id = $1
		ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("forecast: list: %w", err)
	}
	defer rows.Close()

	var forecasts []Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("forecast: list scan: %w", err)
		}
		forecasts = append(forecasts, f)
	}
	return forecasts, rows.Err()
}

// UpdateAssumptions replaces the stored assumption bundle.
func (r *Repository) UpdateAssumptions(ctx context.Context, id uuid.UUID, a Assumptions) error {
	assumptions, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("forecast: marshal assumptions: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecasts SET assumptions = $2, updated_at = now() WHERE id = $1`, id, assumptions)
	if err != nil {
		return fmt.Errorf("forecast: update assumptions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: forecast %s", ErrNotFound, id)
	}
	return nil
}

// ReplaceLines swaps the full line set of a forecast in one transaction.
func (r *Repository) ReplaceLines(ctx context.Context, forecastID uuid.UUID, lines []Line) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM forecast_lines WHERE forecast_id = $1`, forecastID); err != nil {
			return fmt.Errorf("forecast: clear lines: %w", err)
		}
		for pos, line := range lines {
			if err := insertLine(ctx, tx, forecastID, line, pos); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE forecasts SET updated_at = now() WHERE id = $1`, forecastID); err != nil {
			return fmt.Errorf("forecast: touch header: %w", err)
		}
		return nil
	})
}

func insertLine(ctx context.Context, tx pgx.Tx, forecastID uuid.UUID, line Line, position int) error {
	amounts, err := json.Marshal(line.Amounts)
	if err != nil {
		return fmt.Errorf("forecast: marshal amounts: %w", err)
	}
	method, err := json.Marshal(line.Method)
	if err != nil {
		return fmt.Errorf("forecast: marshal method: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO forecast_lines (id, forecast_id, category, sub_category, method, amounts, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.ID, forecastID, string(line.Category), line.SubCategory, method, amounts, position,
	); err != nil {
		return fmt.Errorf("forecast: insert line: %w", err)
	}
	return nil
}

// ListLines loads the line set in stored order.
func (r *Repository) ListLines(ctx context.Context, forecastID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, category, sub_category, method, amounts
		FROM forecast_lines WHERE forecast_id = $1
		ORDER BY position`, forecastID)
	if err != nil {
		return nil, fmt.Errorf("forecast: list lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			line    Line
			cat     string
			method  []byte
			amounts []byte
		)
		if err := rows.Scan(&line.ID, &cat, &line.SubCategory, &method, &amounts); err != nil {
			return nil, fmt.Errorf("forecast: scan line: %w", err)
		}
		line.Category = Category(cat)
		if err := json.Unmarshal(method, &line.Method); err != nil {
			return nil, fmt.Errorf("forecast: unmarshal method: %w", err)
		}
		if err := json.Unmarshal(amounts, &line.Amounts); err != nil {
			return nil, fmt.Errorf("forecast: unmarshal amounts: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateLine persists a single edited line.
func (r *Repository) UpdateLine(ctx context.Context, forecastID uuid.UUID, line Line) error {
	amounts, err := json.Marshal(line.Amounts)
	if err != nil {
		return fmt.Errorf("forecast: marshal amounts: %w", err)
	}
	method, err := json.Marshal(line.Method)
	if err != nil {
		return fmt.Errorf("forecast: marshal method: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_lines SET method = $3, amounts = $4
		WHERE forecast_id = $1 AND id = $2`, forecastID, line.ID, method, amounts)
	if err != nil {
		return fmt.Errorf("forecast: update line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: line %s", ErrNotFound, line.ID)
	}
	return nil
}

// InsertRebuild enqueues a pending rebuild record.
func (r *Repository) InsertRebuild(ctx context.Context, forecastID uuid.UUID) (Rebuild, error) {
	rebuild := Rebuild{ForecastID: forecastID, Status: RebuildPending}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO forecast_rebuilds (forecast_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`, forecastID, string(RebuildPending))
	if err := row.Scan(&rebuild.ID, &rebuild.CreatedAt, &rebuild.UpdatedAt); err != nil {
		return Rebuild{}, fmt.Errorf("forecast: insert rebuild: %w", err)
	}
	return rebuild, nil
}

// GetRebuild loads a rebuild record by id.
func (r *Repository) GetRebuild(ctx context.Context, id int64) (Rebuild, error) {
	var rebuild Rebuild
	var status string
	row := r.pool.QueryRow(ctx, `
		SELECT id, forecast_id, status, COALESCE(error_message, ''), created_at, updated_at
		FROM forecast_rebuilds WHERE id = $1`, id)
	if err := row.Scan(&rebuild.ID, &rebuild.ForecastID, &status, &rebuild.Error, &rebuild.CreatedAt, &rebuild.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rebuild{}, fmt.Errorf("%w: rebuild %d", ErrRebuildNotFound, id)
		}
		return Rebuild{}, fmt.Errorf("forecast: get rebuild: %w", err)
	}
	rebuild.Status = RebuildStatus(status)
	return rebuild, nil
}

// UpdateRebuildStatus transitions a rebuild, recording an error message
// for failures.
func (r *Repository) UpdateRebuildStatus(ctx context.Context, id int64, status RebuildStatus, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_rebuilds SET status = $2, error_message = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("forecast: update rebuild: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rebuild %d", ErrRebuildNotFound, id)
	}
	return nil
}

// ListForecastIDs returns every forecast id, used by the nightly
// recalculation sweep.
func (r *Repository) ListForecastIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM forecasts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("forecast: list ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("forecast: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type forecastScanner interface {
	Scan(dest ...any) error
}

func scanForecast(row forecastScanner) (Forecast, error) {
	var (
		f           Forecast
		assumptions []byte
	)
	if err := row.Scan(
		&f.ID, &f.CompanyID, &f.Name,
		&f.Bounds.ActualStart, &f.Bounds.ActualEnd, &f.Bounds.ForecastStart, &f.Bounds.ForecastEnd,
		&f.Bounds.BaselineStart, &f.Bounds.BaselineEnd,
		&assumptions, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return Forecast{}, err
	}
	if err := json.Unmarshal(assumptions, &f.Assumptions); err != nil {
		return Forecast{}, fmt.Errorf("unmarshal assumptions: %w", err)
	}
	return f, nil
}

func nullableKey(key period.MonthKey) any {
	if key == "" {
		return nil
	}
	return string(key)
}
