// Package forecasthttp exposes the forecast JSON API.
package forecasthttp

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wisdomcg/wisdom-forecast/internal/forecast"
	"github.com/wisdomcg/wisdom-forecast/internal/period"
	"github.com/wisdomcg/wisdom-forecast/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// Service exposes the business logic required by the handler.
type Service interface {
	Create(ctx context.Context, input forecast.CreateInput) (forecast.View, []forecast.Fallback, error)
	Get(ctx context.Context, id uuid.UUID) (forecast.View, error)
	List(ctx context.Context, companyID int64) ([]forecast.Forecast, error)
	Recalculate(ctx context.Context, id uuid.UUID) (forecast.View, error)
	OverrideLine(ctx context.Context, forecastID uuid.UUID, input forecast.OverrideInput) (forecast.Line, error)
	RequestRebuild(ctx context.Context, forecastID uuid.UUID, assumptions *forecast.Assumptions) (forecast.Rebuild, error)
	GetRebuild(ctx context.Context, id int64) (forecast.Rebuild, error)
}

// Handler coordinates HTTP requests for forecasts.
type Handler struct {
	logger   *slog.Logger
	service  Service
	validate *validator.Validate
	group    singleflight.Group
}

// NewHandler constructs the forecast HTTP handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers forecast routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/forecasts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{forecastID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/recalculate", h.recalculate)
			r.Put("/lines/{lineID}", h.overrideLine)
			r.Post("/rebuilds", h.requestRebuild)
			r.Get("/rebuilds/{rebuildID}", h.getRebuild)
			r.Get("/export.csv", h.exportCSV)
		})
	})
}

type assumptionsPayload struct {
	RevenueGoal     float64 `json:"revenue_goal" validate:"gte=0"`
	GrossProfitGoal float64 `json:"gross_profit_goal"`
	NetProfitGoal   float64 `json:"net_profit_goal"`
	COGSPercent     float64 `json:"cogs_percent" validate:"gte=0,lte=100"`
	OpexBudget      float64 `json:"opex_budget" validate:"gte=0"`
	Distribution    string  `json:"distribution" validate:"required,oneof=EVEN SEASONAL GROWTH"`
}

func (p assumptionsPayload) toDomain() forecast.Assumptions {
	return forecast.Assumptions{
		RevenueGoal:     p.RevenueGoal,
		GrossProfitGoal: p.GrossProfitGoal,
		NetProfitGoal:   p.NetProfitGoal,
		COGSPercent:     p.COGSPercent,
		OpexBudget:      p.OpexBudget,
		Distribution:    forecast.DistributionMethod(p.Distribution),
	}
}

type createForecastRequest struct {
	CompanyID     int64              `json:"company_id" validate:"required,gt=0"`
	Name          string             `json:"name" validate:"required"`
	ActualStart   string             `json:"actual_start" validate:"required"`
	ActualEnd     string             `json:"actual_end" validate:"required"`
	ForecastStart string             `json:"forecast_start" validate:"required"`
	ForecastEnd   string             `json:"forecast_end" validate:"required"`
	BaselineStart string             `json:"baseline_start"`
	BaselineEnd   string             `json:"baseline_end"`
	Assumptions   assumptionsPayload `json:"assumptions" validate:"required"`
}

type createForecastResponse struct {
	forecast.View
	Fallbacks []forecast.Fallback `json:"fallbacks,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createForecastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body", httpx.ErrBadRequest))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, fallbacks, err := h.service.Create(ctx, forecast.CreateInput{
		CompanyID: req.CompanyID,
		Name:      strings.TrimSpace(req.Name),
		Bounds: period.Bounds{
			ActualStart:   period.MonthKey(req.ActualStart),
			ActualEnd:     period.MonthKey(req.ActualEnd),
			ForecastStart: period.MonthKey(req.ForecastStart),
			ForecastEnd:   period.MonthKey(req.ForecastEnd),
			BaselineStart: period.MonthKey(req.BaselineStart),
			BaselineEnd:   period.MonthKey(req.BaselineEnd),
		},
		Assumptions: req.Assumptions.toDomain(),
	})
	if err != nil {
		h.respondError(w, "create forecast", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createForecastResponse{View: view, Fallbacks: fallbacks})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyStr := strings.TrimSpace(r.URL.Query().Get("company_id"))
	companyID, err := strconv.ParseInt(companyStr, 10, 64)
	if err != nil || companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	forecasts, err := h.service.List(ctx, companyID)
	if err != nil {
		h.respondError(w, "list forecasts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"forecasts": forecasts})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.forecastID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// Collapse concurrent reads of the same forecast into one load.
	ch := h.group.DoChan(id.String(), func() (any, error) {
		return h.service.Get(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "forecast load timed out")
		return
	case res := <-ch:
		if res.Err != nil {
			h.respondError(w, "get forecast", res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val.(forecast.View))
	}
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.forecastID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Recalculate(ctx, id)
	if err != nil {
		h.respondError(w, "recalculate forecast", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type overrideLineRequest struct {
	Amounts map[string]float64 `json:"amounts" validate:"required,min=1"`
}

func (h *Handler) overrideLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.forecastID(w, r)
	if !ok {
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a UUID")
		return
	}
	var req overrideLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body", httpx.ErrBadRequest))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	amounts := make(map[period.MonthKey]float64, len(req.Amounts))
	for key, amount := range req.Amounts {
		amounts[period.MonthKey(key)] = amount
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	line, err := h.service.OverrideLine(ctx, id, forecast.OverrideInput{LineID: lineID, Amounts: amounts})
	if err != nil {
		h.respondError(w, "override line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

type rebuildRequest struct {
	Assumptions *assumptionsPayload `json:"assumptions"`
}

func (h *Handler) requestRebuild(w http.ResponseWriter, r *http.Request) {
	id, ok := h.forecastID(w, r)
	if !ok {
		return
	}
	var req rebuildRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body", httpx.ErrBadRequest))
		return
	}
	var assumptions *forecast.Assumptions
	if req.Assumptions != nil {
		if err := h.validate.Struct(*req.Assumptions); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
			return
		}
		a := req.Assumptions.toDomain()
		assumptions = &a
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rebuild, err := h.service.RequestRebuild(ctx, id, assumptions)
	if err != nil {
		h.respondError(w, "request rebuild", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, rebuild)
}

func (h *Handler) getRebuild(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.forecastID(w, r); !ok {
		return
	}
	rebuildID, err := strconv.ParseInt(chi.URLParam(r, "rebuildID"), 10, 64)
	if err != nil || rebuildID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rebuild id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rebuild, err := h.service.GetRebuild(ctx, rebuildID)
	if err != nil {
		h.respondError(w, "get rebuild", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rebuild)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.forecastID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Get(ctx, id)
	if err != nil {
		h.respondError(w, "export forecast", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", view.Forecast.Name+".csv"))
	writer := csv.NewWriter(w)
	for _, row := range forecast.ExportRows(view.Lines, view.Layout) {
		if err := writer.Write(row); err != nil {
			h.logger.Error("write csv", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("flush csv", slog.Any("error", err))
	}
}

func (h *Handler) forecastID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "forecastID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "forecast id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func validationDetail(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
