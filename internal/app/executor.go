package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quote-manager/internal/platform/logging"
)

// Step names a stage of a guarded write.
type Step string

const (
	StepValidate Step = "validate"
	StepPerform  Step = "perform"
	StepVerify   Step = "verify"
	StepRespond  Step = "respond"
)

// StepError records the stage at which a guarded write stopped.
type StepError struct {
	Op   string
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return e.Op + ": " + string(e.Step) + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep reports the stage recorded in err, if err came from Execute.
func FailedStep(err error) (Step, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}

	return "", false
}

// Operation is a write to the store that is checked before it runs and
// confirmed after. Validate must not change state. Verify inspects what
// Perform returned against the store itself. Nil stages are skipped.
type Operation[I, R, O any] struct {
	Name     string
	Validate func(ctx context.Context, in I) error
	Perform  func(ctx context.Context, in I) (R, error)
	Verify   func(ctx context.Context, in I, res R) error
	Respond  func(ctx context.Context, in I, res R) (O, error)
}

// Execute runs op's stages in order and stops at the first failure, which
// is returned as a *StepError wrapping the stage's error.
func Execute[I, R, O any](ctx context.Context, logger *slog.Logger, op Operation[I, R, O], in I) (O, error) {
	var (
		res R
		out O
	)

	logger = logging.FromContextOr(ctx, logger).With(slog.String("operation", op.Name))
	start := time.Now()

	fail := func(step Step, err error) (O, error) {
		level := slog.LevelError
		if step == StepValidate {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "operation stopped", slog.String("step", string(step)), slog.Any("error", err))

		var zero O

		return zero, &StepError{Op: op.Name, Step: step, Err: err}
	}

	if op.Validate != nil {
		if err := op.Validate(ctx, in); err != nil {
			return fail(StepValidate, err)
		}
	}

	if op.Perform != nil {
		var err error
		if res, err = op.Perform(ctx, in); err != nil {
			return fail(StepPerform, err)
		}
	}

	if op.Verify != nil {
		if err := op.Verify(ctx, in, res); err != nil {
			return fail(StepVerify, err)
		}
	}

	if op.Respond != nil {
		var err error
		if out, err = op.Respond(ctx, in, res); err != nil {
			return fail(StepRespond, err)
		}
	}

	logger.DebugContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return out, nil
}
