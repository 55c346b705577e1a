package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
	"github.com/mr1hm/go-perimeter-risk/internal/events"
	"github.com/mr1hm/go-perimeter-risk/internal/metrics"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/report"
	"github.com/mr1hm/go-perimeter-risk/internal/repository"
)

// fakeAnalyzer implements report.Analyzer for testing
type fakeAnalyzer struct {
	riskErr     error
	summaryErr  error
	controlsErr error
}

func (f *fakeAnalyzer) AnalyzeRisk(ctx context.Context, req analysis.RiskRequest) (analysis.RiskResponse, error) {
	return analysis.RiskResponse{}, f.riskErr
}

func (f *fakeAnalyzer) GeneralAnalysis(ctx context.Context, req analysis.GeneralRequest) (string, error) {
	return "Zona comercial.", f.summaryErr
}

func (f *fakeAnalyzer) ControlsAnalysis(ctx context.Context, req analysis.ControlsRequest) ([]string, error) {
	return []string{"Cámaras"}, f.controlsErr
}

// fakeFinder implements NearbyFinder for testing
type fakeFinder struct {
	pois []models.POI
	err  error
}

func (f *fakeFinder) Nearby(ctx context.Context, lat, lng float64) ([]models.POI, error) {
	return f.pois, f.err
}

type testEnv struct {
	router      *gin.Engine
	repo        *repository.Offices
	broadcaster *events.Broadcaster
	analyzer    *fakeAnalyzer
}

func setupTestRouter(t *testing.T, finder NearbyFinder) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	repo := repository.NewOffices(store)
	analyzer := &fakeAnalyzer{riskErr: errors.New("analysis offline")}
	broadcaster := events.NewBroadcaster()
	m := metrics.New()
	assembler := report.NewAssembler(repo, analyzer, broadcaster, m)

	router := gin.New()
	NewHandler(repo, assembler, finder, broadcaster, m).RegisterRoutes(router)

	return &testEnv{router: router, repo: repo, broadcaster: broadcaster, analyzer: analyzer}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createOffice(t *testing.T, body map[string]any) models.Office {
	t.Helper()
	w := e.do("POST", "/api/oficinas", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var o models.Office
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("failed to parse office: %v", err)
	}
	return o
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestCreateOffice_Defaults(t *testing.T) {
	env := setupTestRouter(t, nil)

	o := env.createOffice(t, map[string]any{"nombre": "Agencia Sopocachi", "ciudad": "La Paz", "aforo": 25})

	if o.ID == "" {
		t.Error("expected generated id")
	}
	if o.Latitude != models.DefaultLatitude || o.Longitude != models.DefaultLongitude {
		t.Errorf("expected default center, got %v,%v", o.Latitude, o.Longitude)
	}
	if len(o.POIs) != 0 {
		t.Errorf("expected no POIs, got %d", len(o.POIs))
	}
	if o.Verdict == nil || o.Verdict.Total != models.RiskUnevaluated {
		t.Errorf("expected unevaluated verdict, got %#v", o.Verdict)
	}

	w := env.do("GET", "/api/oficinas", nil)
	var list []models.Office
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != o.ID {
		t.Errorf("expected office in list, got %+v", list)
	}
}

func TestCreateOffice_Validation(t *testing.T) {
	env := setupTestRouter(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"ciudad": "La Paz"}},
		{"negative capacity", map[string]any{"nombre": "X", "aforo": -1}},
		{"bad latitude", map[string]any{"nombre": "X", "lat": 120.0, "lng": 0.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do("POST", "/api/oficinas", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetOffice_NotFound(t *testing.T) {
	env := setupTestRouter(t, nil)

	for _, path := range []string{
		"/api/oficinas/missing",
		"/api/oficinas/missing/geojson",
		"/api/oficinas/missing/report",
	} {
		if w := env.do("GET", path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
	if w := env.do("DELETE", "/api/oficinas/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on delete, got %d", w.Code)
	}
}

func TestUpdateOffice_KeepsPOIs(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})
	env.do("POST", "/api/oficinas/"+o.ID+"/pois", map[string]any{"tipo": "PR", "lat": -16.5, "lng": -68.1})

	w := env.do("PUT", "/api/oficinas/"+o.ID, map[string]any{"nombre": "Agencia Renombrada", "zona": "Centro"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := env.repo.Get(context.Background(), o.ID)
	if got.Name != "Agencia Renombrada" || got.Zone != "Centro" || len(got.POIs) != 1 {
		t.Errorf("unexpected office %+v", got)
	}
}

func TestUpdateLocation(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	w := env.do("PUT", "/api/oficinas/"+o.ID+"/location", map[string]any{"lat": -17.78, "lng": -63.18})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	got, _ := env.repo.Get(context.Background(), o.ID)
	if got.Latitude != -17.78 || got.Longitude != -63.18 {
		t.Errorf("location not updated: %v,%v", got.Latitude, got.Longitude)
	}

	if w := env.do("PUT", "/api/oficinas/"+o.ID+"/location", map[string]any{"lat": -17.78}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing lng, got %d", w.Code)
	}
}

func TestAddPOI(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	w := env.do("POST", "/api/oficinas/"+o.ID+"/pois", map[string]any{
		"tipo": "pa", "subtipo": "inundacion", "nombre": "Zona baja", "lat": -16.501, "lng": -68.151,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var got models.Office
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.POIs) != 1 {
		t.Fatalf("expected 1 POI, got %d", len(got.POIs))
	}
	p := got.POIs[0]
	if p.ID == "" || p.Type != models.POITypeSupport || p.Subtype != models.POISubtypeFlood {
		t.Errorf("unexpected POI %+v", p)
	}

	bad := []map[string]any{
		{"tipo": "XX", "lat": 0.0, "lng": 0.0},
		{"tipo": "PR", "subtipo": "inundacion", "lat": 0.0, "lng": 0.0},
		{"tipo": "PR", "lat": 0.0},
	}
	for _, body := range bad {
		if w := env.do("POST", "/api/oficinas/"+o.ID+"/pois", body); w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for %v, got %d", body, w.Code)
		}
	}
}

func TestImportNearby(t *testing.T) {
	finder := &fakeFinder{pois: []models.POI{
		{ID: "place-1", Type: models.POITypeNeutral, Name: "Tienda", Latitude: -16.5005, Longitude: -68.15},
		{ID: "place-2", Type: models.POITypeNeutral, Name: "Sin nombre", Latitude: -16.5008, Longitude: -68.1502},
	}}
	env := setupTestRouter(t, finder)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	w := env.do("POST", "/api/oficinas/"+o.ID+"/pois/nearby", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := env.repo.Get(context.Background(), o.ID)
	if len(got.POIs) != 2 {
		t.Errorf("expected 2 imported POIs, got %d", len(got.POIs))
	}
	for _, p := range got.POIs {
		if p.Type != models.POITypeNeutral {
			t.Errorf("expected PN, got %s", p.Type)
		}
	}
}

func TestImportNearby_Errors(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	if w := env.do("POST", "/api/oficinas/"+o.ID+"/pois/nearby", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 without finder, got %d", w.Code)
	}

	env = setupTestRouter(t, &fakeFinder{err: errors.New("REQUEST_DENIED")})
	o = env.createOffice(t, map[string]any{"nombre": "Agencia"})
	if w := env.do("POST", "/api/oficinas/"+o.ID+"/pois/nearby", nil); w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502 on search failure, got %d", w.Code)
	}
}

func TestGeoJSON(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})
	env.do("POST", "/api/oficinas/"+o.ID+"/pois", map[string]any{"tipo": "Va", "lat": -16.5, "lng": -68.149})

	w := env.do("GET", "/api/oficinas/"+o.ID+"/geojson", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if fc.Features[0].Properties.MustString("kind") != "oficina" {
		t.Error("expected office as first feature")
	}
	if fc.Features[1].Properties.MustString("color") != "purple" {
		t.Errorf("expected purple marker, got %v", fc.Features[1].Properties["color"])
	}
}

func TestEnsureVerdict_FallsBackWhenRemoteFails(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})
	for i := 0; i < 4; i++ {
		env.do("POST", "/api/oficinas/"+o.ID+"/pois", map[string]any{"tipo": "PR", "lat": -16.5, "lng": -68.1})
	}

	w := env.do("POST", "/api/oficinas/"+o.ID+"/verdict", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Analisis models.RiskVerdict `json:"analisis"`
		Source   string             `json:"source"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Source != "local" {
		t.Errorf("expected local source, got %s", resp.Source)
	}
	if resp.Analisis.Total != models.RiskHigh || resp.Analisis.Residual != models.RiskMedium || resp.Analisis.Geographic != models.GeoRiskAscending {
		t.Errorf("unexpected verdict %#v", resp.Analisis)
	}
}

func TestRefineNarrative(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})
	env.do("POST", "/api/oficinas/"+o.ID+"/verdict", nil)

	w := env.do("POST", "/api/oficinas/"+o.ID+"/narrative", map[string]any{"image_base64": "data:image/png;base64,AAAA"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := env.repo.Get(context.Background(), o.ID)
	if len(got.Verdict.Controls) != 1 || got.Verdict.Controls[0] != "Cámaras" {
		t.Errorf("expected controls replaced, got %v", got.Verdict.Controls)
	}

	if w := env.do("POST", "/api/oficinas/"+o.ID+"/narrative", map[string]any{"image_base64": "not-an-image"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid image, got %d", w.Code)
	}

	env.analyzer.summaryErr = errors.New("down")
	env.analyzer.controlsErr = errors.New("down")
	if w := env.do("POST", "/api/oficinas/"+o.ID+"/narrative", nil); w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502 when both parts fail, got %d", w.Code)
	}
}

func TestReportHTML(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia Miraflores"})

	w := env.do("GET", "/api/oficinas/"+o.ID+"/report.html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("unexpected content-type %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "Agencia Miraflores") {
		t.Error("expected office name in report")
	}
}

func TestStats(t *testing.T) {
	env := setupTestRouter(t, nil)
	a := env.createOffice(t, map[string]any{"nombre": "A"})
	env.createOffice(t, map[string]any{"nombre": "B"})
	env.do("POST", "/api/oficinas/"+a.ID+"/pois", map[string]any{"tipo": "PR", "lat": -16.5, "lng": -68.1})
	env.do("POST", "/api/oficinas/"+a.ID+"/verdict", nil)

	w := env.do("GET", "/api/stats", nil)
	var s Stats
	json.Unmarshal(w.Body.Bytes(), &s)

	if s.Offices != 2 || s.Evaluated != 1 || s.Unevaluated != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.POIs.PR != 1 || s.ByTotal["Medio"] != 1 {
		t.Errorf("unexpected aggregates %+v", s)
	}
}

func TestDeleteOffice(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	if w := env.do("DELETE", "/api/oficinas/"+o.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w := env.do("GET", "/api/oficinas/"+o.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 after delete, got %d", w.Code)
	}
}

func TestStreamEvents(t *testing.T) {
	env := setupTestRouter(t, nil)
	o := env.createOffice(t, map[string]any{"nombre": "Agencia"})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Headers are only flushed with the first event, so publish before the
	// client call returns.
	go func() {
		for env.broadcaster.SubscriberCount() == 0 {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		env.broadcaster.Publish(events.Event{OfficeID: "other", Kind: events.KindPOIs})
		env.broadcaster.Publish(events.Event{OfficeID: o.ID, Kind: events.KindLocation})
	}()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events?office="+o.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event:") {
			continue
		}
		if kind := strings.TrimSpace(strings.TrimPrefix(line, "event:")); kind != "location" {
			t.Errorf("expected only location events for office, got %q", kind)
		}
		return
	}
	t.Fatalf("stream ended without event: %v", scanner.Err())
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1, 2))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		router.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200, 200, 429; got %v", codes)
	}
}
