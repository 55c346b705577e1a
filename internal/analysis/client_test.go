package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestClient_AnalyzeRisk(t *testing.T) {
	var got RiskRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-risk" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(RiskResponse{
			Total:      "Alto",
			Residual:   "Medio",
			Geographic: "A",
			Controls:   []string{"CCTV"},
		})
	})

	pois := []models.POI{{ID: "p1", Type: models.POITypeSupport, Subtype: models.POISubtypeFlood, Name: "Río", Latitude: 1, Longitude: 2}}
	resp, err := client.AnalyzeRisk(context.Background(), RiskRequest{
		Center: &LatLng{Lat: -16.5, Lng: -68.1},
		POIs:   PayloadFromPOIs(pois),
	})
	if err != nil {
		t.Fatalf("AnalyzeRisk failed: %v", err)
	}

	v, _ := resp.Verdict()
	if v.Total != models.RiskHigh || v.Geographic != models.GeoRiskAscending {
		t.Errorf("unexpected verdict %#v", v)
	}
	if len(got.POIs) != 1 || len(got.POIs[0].Types) != 2 || got.POIs[0].Types[1] != "inundacion" {
		t.Errorf("expected type-tag list [PA inundacion], got %#v", got.POIs)
	}
	if got.Center == nil || got.Center.Lat != -16.5 {
		t.Errorf("expected center in request, got %#v", got.Center)
	}
}

func TestClient_NonOKStatus(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"bad"}`))
	})

	_, err := client.AnalyzeRisk(context.Background(), RiskRequest{Center: &LatLng{}})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", statusErr.Code)
	}
}

func TestClient_MalformedVerdict(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"riesgoTotal":"Extremo","riesgoResidual":"Bajo","riesgoGeografico":"A"}`))
	})

	_, err := client.AnalyzeRisk(context.Background(), RiskRequest{Center: &LatLng{}})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_ResidualAboveTotal(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"riesgoTotal":"Medio","riesgoResidual":"Alto","riesgoGeografico":"I","controlesExistentes":[]}`))
	})

	_, err := client.AnalyzeRisk(context.Background(), RiskRequest{Center: &LatLng{}})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := client.ControlsAnalysis(context.Background(), ControlsRequest{})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_Disabled(t *testing.T) {
	client := NewClient("", time.Second)

	if _, err := client.GeneralAnalysis(context.Background(), GeneralRequest{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second)
	if _, err := client.AnalyzeRisk(context.Background(), RiskRequest{}); err == nil {
		t.Error("expected error from closed server")
	}
}

func TestClient_GeneralAndControls(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/general-analysis":
			var req GeneralRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ImageBase64 == nil {
				t.Error("expected image payload to be forwarded")
			}
			json.NewEncoder(w).Encode(GeneralResponse{Summary: "Zona tranquila."})
		case "/controls-analysis":
			json.NewEncoder(w).Encode(ControlsResponse{Controls: []string{"Cerco eléctrico"}})
		default:
			http.NotFound(w, r)
		}
	})

	img := "data:image/png;base64,AAAA"
	summary, err := client.GeneralAnalysis(context.Background(), GeneralRequest{Description: "Central", ImageBase64: &img})
	if err != nil || summary != "Zona tranquila." {
		t.Errorf("GeneralAnalysis = %q, %v", summary, err)
	}

	controls, err := client.ControlsAnalysis(context.Background(), ControlsRequest{})
	if err != nil || len(controls) != 1 {
		t.Errorf("ControlsAnalysis = %v, %v", controls, err)
	}
}
