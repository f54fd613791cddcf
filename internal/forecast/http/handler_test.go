package forecasthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisdomcg/wisdom-forecast/internal/forecast"
	"github.com/wisdomcg/wisdom-forecast/internal/period"
)

type stubService struct {
	view    forecast.View
	line    forecast.Line
	rebuild forecast.Rebuild
	err     error

	createInput   forecast.CreateInput
	overrideInput forecast.OverrideInput
}

func (s *stubService) Create(ctx context.Context, input forecast.CreateInput) (forecast.View, []forecast.Fallback, error) {
	s.createInput = input
	return s.view, nil, s.err
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID) (forecast.View, error) {
	return s.view, s.err
}

func (s *stubService) List(ctx context.Context, companyID int64) ([]forecast.Forecast, error) {
	return []forecast.Forecast{s.view.Forecast}, s.err
}

func (s *stubService) Recalculate(ctx context.Context, id uuid.UUID) (forecast.View, error) {
	return s.view, s.err
}

func (s *stubService) OverrideLine(ctx context.Context, forecastID uuid.UUID, input forecast.OverrideInput) (forecast.Line, error) {
	s.overrideInput = input
	return s.line, s.err
}

func (s *stubService) RequestRebuild(ctx context.Context, forecastID uuid.UUID, assumptions *forecast.Assumptions) (forecast.Rebuild, error) {
	return s.rebuild, s.err
}

func (s *stubService) GetRebuild(ctx context.Context, id int64) (forecast.Rebuild, error) {
	return s.rebuild, s.err
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)
	return r
}

func fixtureView(t *testing.T) forecast.View {
	t.Helper()
	layout, err := period.BuildLayout(period.Bounds{
		ActualStart:   "2024-07",
		ActualEnd:     "2024-12",
		ForecastStart: "2025-01",
		ForecastEnd:   "2025-06",
	})
	require.NoError(t, err)
	return forecast.View{
		Forecast: forecast.Forecast{
			ID:        uuid.New(),
			CompanyID: 7,
			Name:      "FY25 Plan",
		},
		Layout: layout,
		Lines: []forecast.Line{{
			ID:          uuid.New(),
			Category:    forecast.CategoryRevenue,
			SubCategory: "Revenue",
			Amounts: map[period.MonthKey]float64{
				"2025-01": 20000, "2025-02": 20000, "2025-03": 20000,
				"2025-04": 20000, "2025-05": 20000, "2025-06": 20000,
			},
			Method: forecast.Method{Kind: forecast.MethodFlat},
		}},
	}
}

func validCreateBody() string {
	return `{
		"company_id": 7,
		"name": "FY25 Plan",
		"actual_start": "2024-07",
		"actual_end": "2024-12",
		"forecast_start": "2025-01",
		"forecast_end": "2025-06",
		"assumptions": {
			"revenue_goal": 120000,
			"cogs_percent": 40,
			"opex_budget": 24000,
			"distribution": "EVEN"
		}
	}`
}

func TestCreateForecastReturnsCreated(t *testing.T) {
	svc := &stubService{view: fixtureView(t)}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/forecasts", strings.NewReader(validCreateBody()))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(7), svc.createInput.CompanyID)
	assert.Equal(t, period.MonthKey("2025-01"), svc.createInput.Bounds.ForecastStart)
	assert.Equal(t, forecast.DistributionEven, svc.createInput.Assumptions.Distribution)
}

func TestCreateForecastRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/forecasts", strings.NewReader(`{"company_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid fields")
}

func TestCreateForecastRejectsUnknownDistribution(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	body := strings.Replace(validCreateBody(), "EVEN", "LUMPY", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/forecasts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListForecastsRequiresCompanyID(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetForecastRejectsBadID(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetForecastMapsNotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{err: forecast.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Not Found")
}

func TestGetForecastReturnsView(t *testing.T) {
	view := fixtureView(t)
	router := newTestRouter(t, &stubService{view: view})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/"+view.Forecast.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got forecast.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, view.Forecast.ID, got.Forecast.ID)
	assert.Len(t, got.Layout, 12)
}

func TestOverrideLineParsesAmounts(t *testing.T) {
	view := fixtureView(t)
	svc := &stubService{view: view, line: view.Lines[0]}
	router := newTestRouter(t, svc)

	body := bytes.NewReader([]byte(`{"amounts":{"2025-01":50000}}`))
	target := "/api/forecasts/" + view.Forecast.ID.String() + "/lines/" + view.Lines[0].ID.String()
	req := httptest.NewRequest(http.MethodPut, target, body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, view.Lines[0].ID, svc.overrideInput.LineID)
	assert.Equal(t, float64(50000), svc.overrideInput.Amounts["2025-01"])
}

func TestOverrideLineMapsMonthOutsideLayout(t *testing.T) {
	view := fixtureView(t)
	router := newTestRouter(t, &stubService{err: forecast.ErrMonthOutsideLayout})

	body := strings.NewReader(`{"amounts":{"2030-01":1}}`)
	target := "/api/forecasts/" + view.Forecast.ID.String() + "/lines/" + uuid.NewString()
	req := httptest.NewRequest(http.MethodPut, target, body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestRebuildReturnsAccepted(t *testing.T) {
	view := fixtureView(t)
	rebuild := forecast.Rebuild{ID: 42, ForecastID: view.Forecast.ID, Status: forecast.RebuildPending}
	router := newTestRouter(t, &stubService{rebuild: rebuild})

	req := httptest.NewRequest(http.MethodPost, "/api/forecasts/"+view.Forecast.ID.String()+"/rebuilds", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var got forecast.Rebuild
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, forecast.RebuildPending, got.Status)
}

type failingWriter struct {
	header http.Header
	status int
}

func (w *failingWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *failingWriter) WriteHeader(status int) { w.status = status }

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("client went away")
}

func TestExportCSVSurvivesWriteFailure(t *testing.T) {
	view := fixtureView(t)
	router := newTestRouter(t, &stubService{view: view})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/"+view.Forecast.ID.String()+"/export.csv", nil)
	w := &failingWriter{}
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
}

func TestExportCSVStreamsRows(t *testing.T) {
	view := fixtureView(t)
	router := newTestRouter(t, &stubService{view: view})

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/"+view.Forecast.ID.String()+"/export.csv", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "FY25 Plan.csv")
	body := rr.Body.String()
	assert.Contains(t, body, "Category")
	assert.Contains(t, body, "Revenue")
	assert.Contains(t, body, "20000")
}
