package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/internal/provision"
	"github.com/balaji-balu/offsetup/internal/report"
)

func (e *Engine) execute(ctx context.Context, step plan.Step, res *report.StepResult) error {
	switch a := step.Action.(type) {
	case plan.Command:
		if e.deps.Shell == nil {
			return fault.New(fault.ErrCapabilityUnavailable, "no shell")
		}
		if step.Phase == plan.PhaseSource {
			unlock, err := e.lock(ctx)
			if err != nil {
				return err
			}
			defer unlock()
		}
		return e.deps.Shell.Run(ctx, a.Line, a.Dir)

	case plan.PackageInstall:
		if e.deps.Packages == nil {
			return fault.New(fault.ErrCapabilityUnavailable, "no package manager")
		}
		unlock, err := e.lock(ctx)
		if err != nil {
			return err
		}
		defer unlock()
		return e.deps.Packages.Install(ctx, a.Manager, a.Package)

	case plan.DownloadExtract:
		if e.deps.Artifacts == nil {
			return fault.New(fault.ErrCapabilityUnavailable, "no artifact pipeline")
		}
		out, err := e.deps.Artifacts.Fetch(ctx, a)
		if err != nil {
			return err
		}
		e.opts.Metrics.ArtifactBytes.Add(float64(out.Bytes))
		if !out.Downloaded {
			res.Reason = "already present"
		}
		return nil

	case plan.ApplicationInstall:
		unlock, err := e.lock(ctx)
		if err != nil {
			return err
		}
		defer unlock()
		return e.install(ctx, a, res)

	case plan.EnvBind:
		return e.bind(a)

	case plan.UserProvision:
		secret, err := provision.ResolveCredential(a.Credential, e.deps.Env)
		if err != nil {
			return err
		}
		return e.deps.Provisioner.CreateUser(ctx, a.Name, secret)

	case plan.DatabaseProvision:
		return e.deps.Provisioner.CreateDatabase(ctx, a.Name, a.Owner)

	case plan.PortExpose:
		if e.deps.Ports == nil {
			return fault.New(fault.ErrCapabilityUnavailable, "no port exposer")
		}
		return e.deps.Ports.Expose(ctx, a.Protocol, a.Port)
	}
	return fmt.Errorf("unknown action %T", step.Action)
}

// install tries each strategy in order and stops at the first success.
// Every attempt is recorded on res.
func (e *Engine) install(ctx context.Context, a plan.ApplicationInstall, res *report.StepResult) error {
	var last error
	for _, s := range a.Strategies {
		inst, ok := e.deps.Installers[s]
		if !ok {
			last = fault.New(fault.ErrCapabilityUnavailable, "no %s installer", s)
			res.Attempts = append(res.Attempts, report.Attempt{Strategy: string(s), Outcome: report.OutcomeUnavailable, Error: last.Error()})
			e.opts.Metrics.Fallbacks.WithLabelValues(string(s)).Inc()
			continue
		}

		addr, err := inst.Install(ctx, a)
		if err == nil {
			res.Attempts = append(res.Attempts, report.Attempt{Strategy: string(s), Outcome: report.OutcomeSucceeded})
			if addr != "" {
				e.setAddress(a.App, addr)
			}
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		outcome := report.OutcomeFailed
		if errors.Is(err, fault.ErrCapabilityUnavailable) {
			outcome = report.OutcomeUnavailable
		}
		res.Attempts = append(res.Attempts, report.Attempt{Strategy: string(s), Outcome: outcome, Error: err.Error()})
		e.opts.Metrics.Fallbacks.WithLabelValues(string(s)).Inc()
		level := zap.WarnLevel
		if fault.Recoverable(err) {
			level = zap.InfoLevel
		}
		e.opts.Logger.Log(level, "install strategy did not work, trying next",
			zap.String("app", a.App), zap.String("strategy", string(s)), zap.String("outcome", outcome), zap.Error(err))
		last = err
	}
	if last == nil {
		return fault.New(fault.ErrCapabilityUnavailable, "no install strategy for %s", a.App)
	}
	return fmt.Errorf("every install strategy failed for %s: %w", a.App, last)
}

// bind sets an application's environment variable from its install
// address, else from configuration. A variable that is already set and
// has no new value is left alone.
func (e *Engine) bind(a plan.EnvBind) error {
	value := e.address(a.Source.App)
	if value == "" {
		value = e.deps.Values[a.Source.Key]
	}
	if value == "" {
		if _, ok := e.deps.Env.Lookup(a.Name); ok {
			return nil
		}
		return fault.New(fault.ErrProvisioning, "no value for %s: %s produced no address and env.values.%s is not set", a.Name, a.Source.App, a.Source.Key)
	}
	if err := e.deps.Env.Set(a.Name, value); err != nil {
		return fault.Wrap(fault.ErrProvisioning, err, "set %s", a.Name)
	}
	return nil
}
