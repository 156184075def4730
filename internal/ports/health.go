package ports

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrDuplicateChecker is returned when a second checker registers under a taken name.
var ErrDuplicateChecker = errors.New("duplicate health checker")

// HealthChecker is a component that can say whether it is able to serve.
// The SQLite store and the remote feed both implement it.
type HealthChecker interface {
	// Name keys the check in reports and must be unique per registry.
	Name() string

	// Check returns nil when healthy. It must honour ctx.
	Check(ctx context.Context) error
}

// CheckerFunc turns a closure into a HealthChecker. A nil Fn always passes.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (c CheckerFunc) Name() string { return c.CheckerName }

func (c CheckerFunc) Check(ctx context.Context) error {
	if c.Fn == nil {
		return nil
	}

	return c.Fn(ctx)
}

// HealthRegistry collects checkers at startup and runs them on demand.
type HealthRegistry interface {
	// Register adds a checker whose failure makes the service unhealthy.
	Register(checker HealthChecker) error

	// RegisterOptional adds a checker whose failure only degrades the
	// service, such as the remote feed: local quotes keep being served.
	RegisterOptional(checker HealthChecker) error

	// CheckAll runs every checker concurrently under ctx.
	CheckAll(ctx context.Context) *HealthResult
}

// HealthStatus is the verdict for one check or for the whole service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResult is the outcome of one CheckAll run.
type HealthResult struct {
	Status    HealthStatus            `json:"status"`
	Checks    map[string]*CheckResult `json:"checks"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckResult is the outcome of a single checker. Message carries the
// checker's error text.
type CheckResult struct {
	Status   HealthStatus  `json:"status"`
	Optional bool          `json:"optional,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

type entry struct {
	checker  HealthChecker
	optional bool
}

// DefaultHealthRegistry is the in-process HealthRegistry. Safe for concurrent use.
type DefaultHealthRegistry struct {
	mu      sync.RWMutex
	entries []entry
	now     func() time.Time
}

// NewHealthRegistry returns an empty registry.
func NewHealthRegistry() *DefaultHealthRegistry {
	return &DefaultHealthRegistry{now: time.Now}
}

func (r *DefaultHealthRegistry) Register(checker HealthChecker) error {
	return r.add(entry{checker: checker})
}

func (r *DefaultHealthRegistry) RegisterOptional(checker HealthChecker) error {
	return r.add(entry{checker: checker, optional: true})
}

func (r *DefaultHealthRegistry) add(e entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.checker.Name()
	if slices.ContainsFunc(r.entries, func(o entry) bool { return o.checker.Name() == name }) {
		return fmt.Errorf("%w: %s", ErrDuplicateChecker, name)
	}

	r.entries = append(r.entries, e)

	return nil
}

// CheckAll runs the checks and folds their outcomes: a failed required
// check makes the service unhealthy, failed optional checks alone make
// it degraded.
func (r *DefaultHealthRegistry) CheckAll(ctx context.Context) *HealthResult {
	r.mu.RLock()
	entries := slices.Clone(r.entries)
	r.mu.RUnlock()

	results := make([]*CheckResult, len(entries))

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			results[i] = run(ctx, e, r.now)
			return nil
		})
	}

	_ = g.Wait()

	out := &HealthResult{
		Status:    HealthStatusHealthy,
		Checks:    make(map[string]*CheckResult, len(entries)),
		Timestamp: r.now(),
	}

	for i, e := range entries {
		res := results[i]
		out.Checks[e.checker.Name()] = res

		if res.Status == HealthStatusHealthy {
			continue
		}

		if !e.optional {
			out.Status = HealthStatusUnhealthy
		} else if out.Status == HealthStatusHealthy {
			out.Status = HealthStatusDegraded
		}
	}

	return out
}

func run(ctx context.Context, e entry, now func() time.Time) *CheckResult {
	start := now()
	err := e.checker.Check(ctx)

	res := &CheckResult{
		Status:   HealthStatusHealthy,
		Optional: e.optional,
		Duration: now().Sub(start),
	}

	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Message = err.Error()
	}

	return res
}
