// Package evaluator computes verdicts in the background for offices that
// do not have one yet, so reports open without waiting on the analysis
// service.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mr1hm/go-perimeter-risk/internal/config"
	"github.com/mr1hm/go-perimeter-risk/internal/metrics"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/report"
	"github.com/mr1hm/go-perimeter-risk/internal/worker"
)

type Lister interface {
	List(ctx context.Context) ([]models.Office, error)
}

type VerdictEnsurer interface {
	EnsureVerdict(ctx context.Context, id string) (models.RiskVerdict, report.Source, error)
}

type Manager struct {
	cfg     *config.Config
	offices Lister
	ensurer VerdictEnsurer
	metrics *metrics.Metrics
	pool    *worker.WorkerPool[string]
	cron    *cron.Cron
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, offices Lister, ensurer VerdictEnsurer, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		offices: offices,
		ensurer: ensurer,
		metrics: m,
	}
}

// Start launches the worker pool, runs one sweep right away and schedules
// the rest on the configured cron expression.
func (m *Manager) Start(ctx context.Context) error {
	processor := func(ctx context.Context, id string) error {
		_, source, err := m.ensurer.EnsureVerdict(ctx, id)
		if err != nil {
			return fmt.Errorf("error evaluating office %s: %w", id, err)
		}
		slog.Debug("office evaluated", "id", id, "source", source)
		return nil
	}

	m.pool = worker.NewWorkerPool("evaluator", m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	m.pool.Start(ctx)

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.cfg.Evaluator.Schedule, func() { m.Sweep(ctx) }); err != nil {
		m.pool.Stop()
		return fmt.Errorf("error scheduling evaluator: %w", err)
	}
	m.cron.Start()

	// Initial sweep
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Sweep(ctx)
	}()

	slog.Info("evaluator started", "schedule", m.cfg.Evaluator.Schedule)
	return nil
}

// Sweep queues every office without an evaluated verdict. Offices that do
// not fit in the queue wait for the next sweep. It returns how many were
// queued.
func (m *Manager) Sweep(ctx context.Context) int {
	if m.metrics != nil {
		m.metrics.EvaluatorSweeps.Inc()
	}

	offices, err := m.offices.List(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return 0
	}

	var queued, skipped int
	for _, o := range offices {
		if o.Verdict.Evaluated() {
			continue
		}
		if m.pool.TrySubmit(o.ID) {
			queued++
		} else {
			skipped++
		}
	}

	slog.Debug("sweep complete", "offices", len(offices), "queued", queued, "skipped", skipped)
	return queued
}

func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("evaluator stopped")
}
