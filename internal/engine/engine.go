// Package engine executes an install plan step by step and reports what
// happened to each step.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/balaji-balu/offsetup/internal/artifact"
	"github.com/balaji-balu/offsetup/internal/capability"
	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/metrics"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/internal/provision"
	"github.com/balaji-balu/offsetup/internal/report"
)

const DefaultConcurrency = 4

// Fetcher materializes DownloadExtract steps.
type Fetcher interface {
	Fetch(ctx context.Context, step plan.DownloadExtract) (*artifact.Result, error)
}

// Deps are the capabilities steps run against.
type Deps struct {
	Shell       capability.Shell
	Packages    capability.PackageManager
	Installers  capability.Installers
	Artifacts   Fetcher
	Env         capability.Env
	Provisioner provision.Provisioner
	Ports       capability.PortExposer
	// Values are configured environment values, used by env bindings when
	// the install produced no address.
	Values map[string]string
}

type Options struct {
	Concurrency int
	DryRun      bool
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

type Engine struct {
	deps Deps
	opts Options
	// exclusive serializes steps that take a system-wide package lock.
	exclusive *semaphore.Weighted

	mu        sync.Mutex
	addresses map[string]string
}

func New(deps Deps, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/balaji-balu/offsetup/internal/engine")
	}
	if deps.Provisioner == nil {
		deps.Provisioner = provision.Unavailable{}
	}
	if deps.Env == nil {
		deps.Env = capability.MapEnv{}
	}
	return &Engine{
		deps:      deps,
		opts:      opts,
		exclusive: semaphore.NewWeighted(1),
		addresses: map[string]string{},
	}
}

// run is the mutable state of one Run call.
type run struct {
	plan    *plan.Plan
	fsms    []*stepFSM
	results []report.StepResult
}

// Run executes p in order. Consecutive downloads of one phase run
// concurrently. A failed step that is not fail_silently halts the run and
// leaves the remaining steps pending.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) *report.Report {
	rep := &report.Report{
		RunID:     uuid.NewString(),
		Manifest:  p.Manifest,
		Platform:  p.Platform,
		DryRun:    e.opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	ctx, span := e.opts.Tracer.Start(ctx, "offsetup.run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("manifest", p.Manifest),
		attribute.String("platform", p.Platform),
		attribute.Int("steps", len(p.Steps)),
	))
	defer span.End()

	r := &run{plan: p, fsms: make([]*stepFSM, len(p.Steps)), results: make([]report.StepResult, len(p.Steps))}
	for i, s := range p.Steps {
		r.fsms[i] = newStepFSM(s.ID, e.opts.Logger)
		r.results[i] = report.StepResult{
			ID:           s.ID,
			Kind:         string(s.Kind()),
			Phase:        s.Phase.String(),
			Owner:        s.Owner,
			Summary:      s.Action.String(),
			FailSilently: s.FailSilently,
		}
	}
	e.opts.Logger.Info("run started", zap.String("run_id", rep.RunID), zap.String("platform", p.Platform), zap.Int("steps", len(p.Steps)))

	halted := false
	for i := 0; i < len(p.Steps) && !halted; {
		if ctx.Err() != nil {
			break
		}
		j := e.batchEnd(p.Steps, i)
		if j-i > 1 {
			e.runBatch(ctx, r, i, j)
		} else {
			e.runStep(ctx, r, i)
		}
		for k := i; k < j; k++ {
			if r.fsms[k].State() == report.StateFailed && !p.Steps[k].FailSilently {
				halted = true
			}
		}
		i = j
	}

	cancelled := ctx.Err() != nil
	if cancelled {
		e.markCancelled(ctx, r)
	}

	for i := range r.results {
		r.results[i].State = r.fsms[i].State()
	}
	rep.Steps = r.results
	rep.FinishedAt = time.Now().UTC()
	switch {
	case rep.Failed():
		rep.Status = report.StatusFailed
		span.SetStatus(codes.Error, "step failed")
	case cancelled:
		rep.Status = report.StatusCancelled
	case e.opts.DryRun:
		rep.Status = report.StatusDryRun
	default:
		rep.Status = report.StatusSuccess
	}
	span.SetAttributes(attribute.String("status", string(rep.Status)))
	return rep
}

// batchEnd returns the end of the run of downloads starting at i, or i+1.
func (e *Engine) batchEnd(steps []plan.Step, i int) int {
	if _, ok := steps[i].Action.(plan.DownloadExtract); !ok || e.opts.DryRun {
		return i + 1
	}
	j := i + 1
	for j < len(steps) && steps[j].Phase == steps[i].Phase {
		if _, ok := steps[j].Action.(plan.DownloadExtract); !ok {
			break
		}
		j++
	}
	return j
}

func (e *Engine) runBatch(ctx context.Context, r *run, from, to int) {
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i := from; i < to; i++ {
		g.Go(func() error {
			e.runStep(ctx, r, i)
			return nil
		})
	}
	_ = g.Wait()
}

// markCancelled settles every step that did not succeed as skipped.
func (e *Engine) markCancelled(ctx context.Context, r *run) {
	for i, f := range r.fsms {
		switch f.State() {
		case report.StatePending, report.StateRunning:
			f.fire(ctx, evSkip)
			r.results[i].Cancelled = true
			r.results[i].Reason = "cancelled"
		}
	}
}

func (e *Engine) runStep(ctx context.Context, r *run, i int) {
	step := r.plan.Steps[i]
	f := r.fsms[i]
	res := &r.results[i]
	logger := e.opts.Logger.With(zap.String("step", step.ID))

	switch {
	case e.opts.DryRun:
		f.fire(ctx, evSkip)
		res.Reason = "dry-run"
		e.count(step, report.StateSkipped)
		return
	case step.SkipInstall:
		f.fire(ctx, evSkip)
		res.Reason = "skip_install"
		e.count(step, report.StateSkipped)
		return
	}

	ctx, span := e.opts.Tracer.Start(ctx, "offsetup.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.kind", string(step.Kind())),
		attribute.String("step.phase", step.Phase.String()),
	))
	defer span.End()

	f.fire(ctx, evStart)
	start := time.Now()
	err := e.execute(ctx, step, res)
	res.Duration = time.Since(start)
	e.opts.Metrics.StepDuration.WithLabelValues(string(step.Kind())).Observe(res.Duration.Seconds())

	if err == nil {
		f.fire(ctx, evSucceed)
		e.count(step, report.StateSucceeded)
		logger.Info("step succeeded", zap.Duration("took", res.Duration))
		return
	}

	// Anything a step returns once the run is cancelled is the cancellation:
	// killed commands report their signal, not ctx.Err().
	if ctx.Err() != nil {
		f.fire(ctx, evSkip)
		res.Cancelled = true
		res.Reason = "cancelled"
		e.count(step, report.StateSkipped)
		return
	}

	f.fire(ctx, evFail)
	res.ErrorKind = fault.KindOf(err)
	res.Error = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, res.ErrorKind)
	e.count(step, report.StateFailed)
	if step.FailSilently {
		logger.Warn("step failed, continuing", zap.String("owner", step.Owner), zap.Error(err))
		return
	}
	logger.Error("step failed", zap.Error(err))
}

func (e *Engine) count(step plan.Step, state report.State) {
	e.opts.Metrics.StepsTotal.WithLabelValues(string(step.Kind()), string(state)).Inc()
}

// lock takes the package-manager lock for steps that need it.
func (e *Engine) lock(ctx context.Context) (func(), error) {
	if err := e.exclusive.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.exclusive.Release(1) }, nil
}

func (e *Engine) address(app string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addresses[app]
}

func (e *Engine) setAddress(app, addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addresses[app] = addr
}
