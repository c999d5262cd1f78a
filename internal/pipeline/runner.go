package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	derrors "git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
)

// Runner executes task trees, logging each task and recording timings.
type Runner struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	runID    string
}

// NewRunner creates a runner with a fresh run id. Nil arguments select defaults.
func NewRunner(logger *slog.Logger, recorder metrics.Recorder) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	id := uuid.NewString()
	return &Runner{logger: logger.With(logfields.RunID(id)), recorder: recorder, runID: id}
}

// RunID identifies this runner's log lines.
func (r *Runner) RunID() string { return r.runID }

// Run executes t and records the overall outcome.
func (r *Runner) Run(ctx context.Context, t Task) error {
	start := time.Now()
	r.logger.Debug("Task tree", slog.String("tree", t.String()))
	err := r.exec(ctx, t)
	r.recorder.ObserveBuildDuration(time.Since(start))
	switch {
	case err == nil:
		r.recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
	case errors.Is(err, context.Canceled):
		r.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
	default:
		r.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	}
	return err
}

func (r *Runner) exec(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := r.logger.With(logfields.Task(t.Name))
	if t.kind == kindFunc {
		log.Debug("Task started")
	}

	start := time.Now()
	var err error
	switch t.kind {
	case kindFunc:
		err = classify(t.Name, t.fn(ctx))
	case kindSeries:
		err = r.series(ctx, t)
	case kindParallel:
		err = r.parallel(ctx, t)
	}
	dur := time.Since(start)

	r.recorder.ObserveTaskDuration(t.Name, dur)
	r.recorder.IncTaskResult(t.Name, metrics.ResultFor(err, errors.Is(err, context.Canceled)))
	if t.kind != kindFunc {
		return err
	}
	if err != nil {
		log.Error("Task failed", logfields.Duration(dur), logfields.Error(err))
		return err
	}
	log.Info("Task finished", logfields.Duration(dur))
	return nil
}

func (r *Runner) series(ctx context.Context, t Task) error {
	for i, child := range t.children {
		if err := r.exec(ctx, child); err != nil {
			if rest := len(t.children) - i - 1; rest > 0 {
				r.logger.Warn("Skipping remaining steps", logfields.Task(t.Name), slog.Int("skipped", rest))
			}
			return err
		}
	}
	return nil
}

// parallel joins every branch before reporting, so sibling branches finish
// writing their own output even after one fails.
func (r *Runner) parallel(ctx context.Context, t Task) error {
	var g errgroup.Group
	for _, child := range t.children {
		g.Go(func() error { return r.exec(ctx, child) })
	}
	return g.Wait()
}

// classify tags task failures that carry no category as build errors, so the
// CLI maps them to the build exit code.
func classify(task string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || derrors.IsClassified(err) {
		return err
	}
	return derrors.BuildError("task failed").
		WithContext("task", task).
		WithCause(err).
		Build()
}
