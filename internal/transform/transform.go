// Package transform runs one asset class through its engine: enumerate the
// class glob under a base root, transform every file, write the results under
// an output root at their mirrored path and notify reload listeners.
//
// Failures are skip-and-report: every file is attempted, a failed file produces
// no output, each failure is logged with its path and the run returns a single
// TransformError listing all of them.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/reload"
)

// Engine transforms one record. Implementations must not modify rec.Content.
type Engine interface {
	Transform(ctx context.Context, rec asset.Record) (asset.Record, error)
}

// Func adapts a bytes-in/bytes-out function to Engine.
type Func func(ctx context.Context, rec asset.Record) (asset.Record, error)

func (f Func) Transform(ctx context.Context, rec asset.Record) (asset.Record, error) {
	return f(ctx, rec)
}

// Identity passes records through unchanged.
var Identity Engine = Func(func(_ context.Context, rec asset.Record) (asset.Record, error) {
	return rec, nil
})

// Preparer is implemented by engines that load shared state (such as template
// partials) once per run.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Job describes one transformer invocation.
type Job struct {
	Name    string
	Class   asset.Class
	Root    string
	Pattern string
	// Exclude drops matches of a second glob, e.g. template partials from pages.
	Exclude string
	Out     string
	Engine  Engine
	// Event builds the reload notification for the written paths. Nil disables
	// notification for this job.
	Event    func(paths []string) reload.Event
	Notifier reload.Notifier
	Recorder metrics.Recorder
	Logger   *slog.Logger
	// Limit bounds concurrent file transforms; zero selects GOMAXPROCS.
	Limit int
}

// Failure is one file that could not be transformed.
type Failure struct {
	Path string
	Err  error
}

// Result summarizes a run.
type Result struct {
	Written  []string
	Failed   []Failure
	BytesIn  uint64
	BytesOut uint64
}

// Run executes job. A cancelled context stops scheduling further files.
func Run(ctx context.Context, job Job) (Result, error) {
	job = withDefaults(job)
	log := job.Logger.With(logfields.Task(job.Name), logfields.Class(string(job.Class)))

	if p, ok := job.Engine.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return Result{}, errors.WrapError(err, errors.CategoryTransform, "failed to prepare engine").
				WithContext("task", job.Name).
				Build()
		}
	}

	records, err := asset.Enumerate(job.Root, job.Pattern, job.Class)
	if err != nil {
		return Result{}, err
	}
	if job.Exclude != "" {
		records = exclude(records, job.Exclude)
	}
	if len(records) == 0 {
		log.Debug("No files matched", logfields.Root(job.Root), slog.String("pattern", job.Pattern))
		return Result{}, nil
	}

	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(job.Limit)
	for _, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, dst, err := transformOne(gctx, job, rec)

			mu.Lock()
			defer mu.Unlock()
			res.BytesIn += uint64(len(rec.Content))
			if err != nil {
				res.Failed = append(res.Failed, Failure{Path: rec.Path, Err: err})
				log.Error("Transform failed", logfields.Path(rec.Path), logfields.Error(err))
				return nil
			}
			res.BytesOut += uint64(len(out.Content))
			res.Written = append(res.Written, out.Path)
			log.Debug("Wrote asset", logfields.Path(rec.Path), logfields.Dest(dst))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Strings(res.Written)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Path < res.Failed[j].Path })
	job.Recorder.AddFilesProcessed(string(job.Class), len(res.Written))
	job.Recorder.AddFileFailures(string(job.Class), len(res.Failed))

	log.Info("Transformed assets",
		logfields.Files(len(res.Written)),
		slog.Int("failed", len(res.Failed)),
		slog.String("in", humanize.Bytes(res.BytesIn)),
		slog.String("out", humanize.Bytes(res.BytesOut)))

	if job.Event != nil && len(res.Written) > 0 {
		job.Notifier.Notify(ctx, job.Event(res.Written))
	}

	if len(res.Failed) > 0 {
		return res, failureError(job, res.Failed)
	}
	return res, nil
}

func transformOne(ctx context.Context, job Job, rec asset.Record) (asset.Record, string, error) {
	out, err := job.Engine.Transform(ctx, rec)
	if err != nil {
		return asset.Record{}, "", err
	}
	dst, err := asset.Write(job.Out, out)
	if err != nil {
		return asset.Record{}, "", err
	}
	return out, dst, nil
}

func failureError(job Job, failed []Failure) error {
	paths := make([]string, len(failed))
	for i, f := range failed {
		paths[i] = f.Path
	}
	b := errors.TransformError(fmt.Sprintf("%d %s file(s) failed to transform", len(failed), job.Class)).
		WithContext("task", job.Name).
		WithContext("paths", strings.Join(paths, ", "))
	if len(failed) == 1 {
		b = b.WithCause(failed[0].Err)
	}
	return b.Build()
}

func exclude(records []asset.Record, pattern string) []asset.Record {
	kept := records[:0:0]
	for _, rec := range records {
		if ok, _ := doublestar.Match(pattern, rec.Path); ok {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func withDefaults(job Job) Job {
	if job.Engine == nil {
		job.Engine = Identity
	}
	if job.Notifier == nil {
		job.Notifier = reload.Noop{}
	}
	if job.Recorder == nil {
		job.Recorder = metrics.NoopRecorder{}
	}
	if job.Logger == nil {
		job.Logger = slog.Default()
	}
	if job.Limit <= 0 {
		job.Limit = runtime.GOMAXPROCS(0)
	}
	if job.Name == "" {
		job.Name = string(job.Class)
	}
	return job
}
