package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/jsamuelsen/quote-manager/internal/platform/logging"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

const (
	// syncKey is the singleflight key shared by every pass.
	syncKey = "sync"

	tracerName = "github.com/jsamuelsen/quote-manager/app"

	defaultSyncInterval     = 30 * time.Second
	defaultSyncFetchTimeout = 15 * time.Second
)

// Run outcomes recorded in quote_sync_runs_total.
const (
	SyncResultChanged    = "changed"
	SyncResultUnchanged  = "unchanged"
	SyncResultFetchError = "fetch_error"
	SyncResultSaveError  = "save_error"
)

// SyncerConfig contains the dependencies of a Syncer.
type SyncerConfig struct {
	Source     ports.QuoteSource
	Reconciler *Reconciler

	// Interval is the fixed period between passes.
	Interval time.Duration

	// FetchTimeout bounds each remote fetch.
	FetchTimeout time.Duration

	// RunOnStart triggers a pass as soon as Run is called.
	RunOnStart bool

	// Registerer receives the sync counters. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// SyncStatus describes the most recent completed pass.
type SyncStatus struct {
	Runs       int             `json:"runs"`
	LastRunAt  time.Time       `json:"lastRunAt,omitzero"`
	LastResult ReconcileResult `json:"lastResult"`
	LastError  string          `json:"lastError,omitempty"`
}

// Syncer pulls the remote batch and hands it to the reconciler, either on a
// fixed schedule or on demand. Overlapping requests share one pass.
type Syncer struct {
	source       ports.QuoteSource
	reconciler   *Reconciler
	interval     time.Duration
	fetchTimeout time.Duration
	runOnStart   bool
	logger       *slog.Logger

	group singleflight.Group

	runs    *prometheus.CounterVec
	records *prometheus.CounterVec

	mu     sync.Mutex
	status SyncStatus

	// lifetime is the ctx of Run. Shared passes stop when it ends.
	lifetime context.Context
}

// NewSyncer creates a syncer. Panics if Source or Reconciler is nil.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Source == nil {
		panic("Syncer: Source is required")
	}

	if cfg.Reconciler == nil {
		panic("Syncer: Reconciler is required")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultSyncInterval
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultSyncFetchTimeout
	}

	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runs, err := registerCounterVec(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_sync_runs_total",
		Help: "Completed remote sync passes by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	records, err := registerCounterVec(cfg.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_sync_records_total",
		Help: "Remote records processed by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	return &Syncer{
		source:       cfg.Source,
		reconciler:   cfg.Reconciler,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		runOnStart:   cfg.RunOnStart,
		logger:       logger.With(slog.String("component", "app.Syncer")),
		runs:         runs,
		records:      records,
	}, nil
}

// registerCounterVec registers c, reusing an identical collector that is already registered.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}

		return nil, fmt.Errorf("registering sync metrics: %w", err)
	}

	return c, nil
}

// Run syncs every Interval until ctx is cancelled. Failed passes are logged
// and do not stop the loop.
func (s *Syncer) Run(ctx context.Context) error {
	s.mu.Lock()
	s.lifetime = ctx
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "periodic sync started",
		slog.Duration("interval", s.interval),
		slog.Bool("run_on_start", s.runOnStart),
	)

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "periodic sync stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	// Errors are already logged and counted by the pass itself.
	_, _ = s.SyncNow(ctx)
}

// SyncNow runs a pass, or joins the pass already in flight. A caller whose
// ctx ends stops waiting; the shared pass keeps running with the first
// caller's values until it completes or Run stops.
func (s *Syncer) SyncNow(ctx context.Context) (ReconcileResult, error) {
	ch := s.group.DoChan(syncKey, func() (any, error) {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()

		stop := context.AfterFunc(s.lifetimeContext(), cancel)
		defer stop()

		return s.pass(flightCtx)
	})

	select {
	case <-ctx.Done():
		return ReconcileResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logging.FromContextOr(ctx, s.logger).DebugContext(ctx, "joined in-flight sync")
		}

		result, _ := res.Val.(ReconcileResult)

		return result, res.Err
	}
}

func (s *Syncer) lifetimeContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifetime == nil {
		return context.Background()
	}

	return s.lifetime
}

// Status returns a copy of the last pass outcome.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// pass fetches and reconciles once.
func (s *Syncer) pass(ctx context.Context) (ReconcileResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "quote.sync")
	defer span.End()

	logger := logging.FromContextOr(ctx, s.logger)
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	remote, err := s.source.FetchQuotes(fetchCtx)
	cancel()

	if err != nil {
		logger.ErrorContext(ctx, "remote fetch failed, keeping local data", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.finish(SyncResultFetchError, ReconcileResult{}, err)

		return ReconcileResult{}, fmt.Errorf("fetching remote quotes: %w", err)
	}

	result, err := s.reconciler.Reconcile(ctx, remote)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.finish(SyncResultSaveError, result, err)
		return result, err
	}

	outcome := SyncResultUnchanged
	if result.Changed() {
		outcome = SyncResultChanged
	}

	s.finish(outcome, result, nil)

	span.SetAttributes(
		attribute.String("sync.result", outcome),
		attribute.Int("sync.fetched", len(remote)),
		attribute.Int("sync.added", result.AddedCount),
		attribute.Int("sync.updated", result.UpdatedCount),
	)

	logger.DebugContext(ctx, "sync pass finished",
		slog.String("result", outcome),
		slog.Int("fetched", len(remote)),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (s *Syncer) finish(outcome string, result ReconcileResult, err error) {
	s.runs.WithLabelValues(outcome).Inc()
	s.records.WithLabelValues("added").Add(float64(result.AddedCount))
	s.records.WithLabelValues("updated").Add(float64(result.UpdatedCount))
	s.records.WithLabelValues("rejected").Add(float64(result.Rejected))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Runs++
	s.status.LastRunAt = time.Now()
	s.status.LastResult = result

	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}
