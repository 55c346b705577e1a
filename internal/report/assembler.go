// Package report assembles the perimeter security report of an office: it
// makes sure a risk verdict exists, refines it with narrative analysis and
// renders the printable report.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
	"github.com/mr1hm/go-perimeter-risk/internal/events"
	"github.com/mr1hm/go-perimeter-risk/internal/metrics"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/repository"
	"github.com/mr1hm/go-perimeter-risk/internal/risk"
)

// MaxImageBytes bounds the embedded image forwarded to narrative analysis.
const MaxImageBytes = 8 << 20

// evaluationTimeout bounds a shared verdict evaluation, which runs detached
// from the callers waiting on it.
const evaluationTimeout = 2 * time.Minute

var (
	ErrNarrativeFailed = errors.New("narrative analysis failed")
	ErrInvalidImage    = errors.New("invalid image payload")
)

// Analyzer is the part of the remote analysis service the assembler uses.
type Analyzer interface {
	AnalyzeRisk(ctx context.Context, req analysis.RiskRequest) (analysis.RiskResponse, error)
	GeneralAnalysis(ctx context.Context, req analysis.GeneralRequest) (string, error)
	ControlsAnalysis(ctx context.Context, req analysis.ControlsRequest) ([]string, error)
}

type Source string

const (
	SourceStored Source = "stored"
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

type Narrative struct {
	Summary           string   `json:"summary,omitempty"`
	SummaryError      string   `json:"summaryError,omitempty"`
	Controls          []string `json:"controles,omitempty"`
	ControlsError     string   `json:"controlesError,omitempty"`
	ControlsPersisted bool     `json:"controlesPersisted"`
}

type Assembler struct {
	repo        repository.OfficeRepository
	analyzer    Analyzer
	broadcaster *events.Broadcaster
	metrics     *metrics.Metrics
	inflight    singleflight.Group
	now         func() time.Time
}

// NewAssembler wires the assembler. broadcaster and m may be nil.
func NewAssembler(repo repository.OfficeRepository, analyzer Analyzer, broadcaster *events.Broadcaster, m *metrics.Metrics) *Assembler {
	return &Assembler{
		repo:        repo,
		analyzer:    analyzer,
		broadcaster: broadcaster,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type evaluation struct {
	verdict models.RiskVerdict
	source  Source
}

// EnsureVerdict returns the office's verdict, computing and persisting it
// when it is absent or still "Sin evaluar". A stored verdict is returned as
// is with no remote call. Concurrent calls for one office share a single
// evaluation.
func (a *Assembler) EnsureVerdict(ctx context.Context, id string) (models.RiskVerdict, Source, error) {
	office, err := a.repo.Get(ctx, id)
	if err != nil {
		return models.RiskVerdict{}, "", err
	}
	if office.Verdict.Evaluated() {
		a.countVerdict(SourceStored)
		return office.Verdict.Clone(), SourceStored, nil
	}

	// A caller that goes away stops waiting but does not cancel the flight
	// for the others joined on it.
	ch := a.inflight.DoChan(id, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evaluationTimeout)
		defer cancel()
		return a.evaluate(fctx, id)
	})

	select {
	case <-ctx.Done():
		return models.RiskVerdict{}, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.RiskVerdict{}, "", res.Err
		}
		ev := res.Val.(evaluation)
		return ev.verdict.Clone(), ev.source, nil
	}
}

func (a *Assembler) evaluate(ctx context.Context, id string) (evaluation, error) {
	// Re-read inside the flight: an earlier flight may have just finished.
	office, err := a.repo.Get(ctx, id)
	if err != nil {
		return evaluation{}, err
	}
	if office.Verdict.Evaluated() {
		a.countVerdict(SourceStored)
		return evaluation{verdict: *office.Verdict, source: SourceStored}, nil
	}

	verdict, err := a.remoteVerdict(ctx, office)
	source := SourceRemote
	if err != nil {
		slog.Warn("remote risk analysis failed, using local classifier", "id", id, "error", err)
		verdict = risk.Classify(office.POIs)
		source = SourceLocal
	}

	if _, err := a.repo.AttachVerdict(ctx, id, verdict); err != nil {
		return evaluation{}, fmt.Errorf("error saving verdict: %w", err)
	}

	a.countVerdict(source)
	a.publish(events.Event{OfficeID: id, Kind: events.KindVerdict, Verdict: &verdict})
	slog.Info("verdict computed", "id", id, "source", source, "total", verdict.Total, "geo", verdict.Geographic)

	return evaluation{verdict: verdict, source: source}, nil
}

func (a *Assembler) remoteVerdict(ctx context.Context, office *models.Office) (models.RiskVerdict, error) {
	if a.analyzer == nil {
		return models.RiskVerdict{}, analysis.ErrDisabled
	}

	start := time.Now()
	resp, err := a.analyzer.AnalyzeRisk(ctx, analysis.RiskRequest{
		Center: &analysis.LatLng{Lat: office.Latitude, Lng: office.Longitude},
		POIs:   analysis.PayloadFromPOIs(office.POIs),
	})
	a.observe("analyze-risk", start, err)
	if err != nil {
		return models.RiskVerdict{}, err
	}
	return resp.Verdict()
}

// RefineWithNarrative asks the analysis service for a free-text summary and a
// revised controls list. The two calls run concurrently and fail
// independently. New controls replace those of the stored verdict; the
// summary is only returned. When both calls fail nothing is written and
// ErrNarrativeFailed is returned.
func (a *Assembler) RefineWithNarrative(ctx context.Context, id, imageData string) (Narrative, error) {
	if err := validateImage(imageData); err != nil {
		return Narrative{}, err
	}

	office, err := a.repo.Get(ctx, id)
	if err != nil {
		return Narrative{}, err
	}
	if a.analyzer == nil {
		return Narrative{}, fmt.Errorf("%w: %w", ErrNarrativeFailed, analysis.ErrDisabled)
	}

	var image *string
	if imageData != "" {
		image = &imageData
	}
	pois := analysis.PayloadFromPOIs(office.POIs)

	var (
		wg                      sync.WaitGroup
		summary                 string
		controls                []string
		summaryErr, controlsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		summary, summaryErr = a.analyzer.GeneralAnalysis(ctx, analysis.GeneralRequest{
			Description: office.Name,
			POIs:        pois,
			ImageBase64: image,
		})
		a.observe("general-analysis", start, summaryErr)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		controls, controlsErr = a.analyzer.ControlsAnalysis(ctx, analysis.ControlsRequest{
			POIs:        pois,
			ImageBase64: image,
		})
		a.observe("controls-analysis", start, controlsErr)
	}()
	wg.Wait()

	var n Narrative
	if summaryErr != nil {
		slog.Error("general analysis failed", "id", id, "error", summaryErr)
		a.countNarrativeFailure("summary")
		n.SummaryError = "Error al generar análisis."
	} else {
		n.Summary = summary
	}

	if controlsErr != nil {
		slog.Error("controls analysis failed", "id", id, "error", controlsErr)
		a.countNarrativeFailure("controls")
		n.ControlsError = "Error al generar controles."
	} else {
		n.Controls = controls
		if office.Verdict != nil {
			updated, err := a.repo.ReplaceControls(ctx, id, controls)
			if err != nil {
				// The summary still stands; only the controls part failed.
				controlsErr = fmt.Errorf("error saving controls: %w", err)
				slog.Error("saving controls failed", "id", id, "error", err)
				a.countNarrativeFailure("controls")
				n.ControlsError = "Error al guardar controles."
			} else {
				n.ControlsPersisted = true
				a.publish(events.Event{OfficeID: id, Kind: events.KindControls, Verdict: updated.Verdict})
			}
		}
	}

	if summaryErr != nil && controlsErr != nil {
		return n, fmt.Errorf("%w: %w", ErrNarrativeFailed, errors.Join(summaryErr, controlsErr))
	}
	return n, nil
}

func validateImage(data string) error {
	if data == "" {
		return nil
	}
	if !strings.HasPrefix(data, "data:image/") {
		return fmt.Errorf("%w: expected a data:image/ URL", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidImage, len(data), MaxImageBytes)
	}
	return nil
}

func (a *Assembler) publish(e events.Event) {
	if a.broadcaster == nil {
		return
	}
	e.At = a.now()
	a.broadcaster.Publish(e)
}

func (a *Assembler) countVerdict(source Source) {
	if a.metrics != nil {
		a.metrics.Verdicts.WithLabelValues(string(source)).Inc()
	}
}

func (a *Assembler) countNarrativeFailure(part string) {
	if a.metrics != nil {
		a.metrics.NarrativeFailures.WithLabelValues(part).Inc()
	}
}

func (a *Assembler) observe(service string, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.RemoteDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.RemoteFailures.WithLabelValues(service).Inc()
	}
}
