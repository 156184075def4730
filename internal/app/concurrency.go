package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PartialResult holds a result or an error for partial success patterns.
type PartialResult[T any] struct {
	Value T
	Err   error
}

// ParallelPartial executes functions and collects all results, even on partial failure.
// It does not cancel the remaining functions when one fails.
func ParallelPartial[T any](
	ctx context.Context,
	fns ...func(context.Context) (T, error),
) []PartialResult[T] {
	results := make([]PartialResult[T], len(fns))

	var wg sync.WaitGroup

	for i, fn := range fns {
		wg.Go(func() {
			value, err := fn(ctx)
			results[i] = PartialResult[T]{Value: value, Err: err}
		})
	}

	wg.Wait()

	return results
}

// WarmupStep is one named startup task.
type WarmupStep struct {
	Name string

	// Required steps abort startup when they fail. Optional failures are logged.
	Required bool

	Run func(ctx context.Context) error
}

// Warmup runs steps concurrently and waits for all of them.
// It returns the joined errors of the required steps that failed.
func Warmup(ctx context.Context, logger *slog.Logger, steps ...WarmupStep) error {
	if logger == nil {
		logger = slog.Default()
	}

	fns := make([]func(context.Context) (time.Duration, error), len(steps))
	for i, step := range steps {
		fns[i] = func(ctx context.Context) (time.Duration, error) {
			start := time.Now()
			err := step.Run(ctx)

			return time.Since(start), err
		}
	}

	var errs []error

	for i, res := range ParallelPartial(ctx, fns...) {
		step := steps[i]

		switch {
		case res.Err == nil:
			logger.DebugContext(ctx, "warmup step done",
				slog.String("step", step.Name),
				slog.Duration("duration", res.Value),
			)
		case step.Required:
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, res.Err))
		default:
			logger.WarnContext(ctx, "optional warmup step failed",
				slog.String("step", step.Name),
				slog.Any("error", res.Err),
			)
		}
	}

	return errors.Join(errs...)
}
