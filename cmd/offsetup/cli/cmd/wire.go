package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/artifact"
	"github.com/balaji-balu/offsetup/internal/capability"
	"github.com/balaji-balu/offsetup/internal/config"
	"github.com/balaji-balu/offsetup/internal/engine"
	"github.com/balaji-balu/offsetup/internal/journal"
	"github.com/balaji-balu/offsetup/internal/loader"
	"github.com/balaji-balu/offsetup/internal/natsbroker"
	"github.com/balaji-balu/offsetup/internal/ocifetch"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/internal/planner"
	"github.com/balaji-balu/offsetup/internal/platform"
	"github.com/balaji-balu/offsetup/internal/provision"
	"github.com/balaji-balu/offsetup/internal/report"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

// closers runs its functions in reverse order.
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func detector(s *config.Settings) *platform.Detector {
	d := platform.NewDetector()
	d.Override = platform.Runtime{OS: s.Runtime.OS, Version: s.Runtime.Version, Arch: s.Runtime.Arch}
	return d
}

// loadPlan reads the manifest and plans it for the running machine.
func loadPlan(ctx context.Context, s *config.Settings) (*manifest.Manifest, platform.Runtime, *plan.Plan, error) {
	rt, err := detector(s).Detect(ctx)
	if err != nil {
		return nil, rt, nil, err
	}
	log.Info("detected runtime", zap.Object("runtime", rt))

	m, err := loader.Load(s.Manifest)
	if err != nil {
		return nil, rt, nil, err
	}
	priority, err := config.ParsePriority(s.InstallPriority)
	if err != nil {
		return nil, rt, nil, err
	}
	p, err := planner.ForRuntime(m, rt, planner.Options{
		InstallPriority: priority,
		DownloadDir:     s.Download.Directory,
	})
	if err != nil {
		return m, rt, nil, err
	}
	return m, rt, p, nil
}

// deps builds the capabilities an install runs against.
func deps(ctx context.Context, s *config.Settings, m *manifest.Manifest) (engine.Deps, closers, error) {
	var done closers
	runner := capability.Exec{Logger: log}
	shell := capability.NewShell(runner)
	packages := capability.Managers{Runner: runner}

	oci := &ocifetch.Fetcher{
		Cache:    s.OCI.Cache,
		Username: s.OCI.Username,
		Token:    config.Secret(s.OCI.TokenEnv),
	}
	mux := artifact.NewMux(artifact.NewHTTP(s.Download.Retries, s.Download.Timeout, log), m.Dir, oci)

	ports, err := capability.NewPortExposer(s.Ports.Firewall, runner, log)
	if err != nil {
		return engine.Deps{}, done, err
	}

	d := engine.Deps{
		Shell:    shell,
		Packages: packages,
		Installers: capability.Installers{
			manifest.Docker: capability.DockerInstaller{Runtime: capability.Docker{Runner: runner}},
			manifest.Native: capability.NativeInstaller{Packages: packages},
			manifest.Source: capability.SourceInstaller{
				Shell:  shell,
				Dir:    s.Source.Directory,
				Token:  config.Secret(s.Source.TokenEnv),
				Logger: log,
			},
		},
		Artifacts: artifact.New(mux, artifact.SHA512, log),
		Env:       &capability.ProcessEnv{File: s.Env.File},
		Ports:     ports,
		Values:    s.Values(),
	}

	if s.Provision.DSN != "" {
		pg, drv, err := provision.OpenPostgres(ctx, s.Provision.DSN, 5, log)
		if err != nil {
			log.Warn("database provisioning unavailable", zap.Error(err))
		} else {
			d.Provisioner = pg
			done = append(done, func() { drv.Close() })
		}
	}
	return d, done, nil
}

// sinks returns where finished reports go: the log, the journal and the
// optional NATS subject and webhook.
func sinks(s *config.Settings) (report.Multi, closers) {
	var done closers
	out := report.Multi{report.Log{Logger: log}}

	if s.Journal.Path != "" {
		store, err := journal.Open(s.Journal.Path)
		if err != nil {
			log.Warn("journal unavailable", zap.String("path", s.Journal.Path), zap.Error(err))
		} else {
			out = append(out, store)
			done = append(done, func() { store.Close() })
		}
	}
	if s.Report.NATSURL != "" {
		b, err := natsbroker.New(s.Report.NATSURL, log)
		if err != nil {
			log.Warn("nats unavailable", zap.String("url", s.Report.NATSURL), zap.Error(err))
		} else {
			out = append(out, report.NATS{Publisher: b, Subject: s.Report.NATSSubject})
			done = append(done, b.Close)
		}
	}
	if s.Report.WebhookURL != "" {
		out = append(out, report.NewWebhook(s.Report.WebhookURL))
	}
	return out, done
}
