package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/engine"
	"github.com/balaji-balu/offsetup/internal/metrics"
	"github.com/balaji-balu/offsetup/internal/report"
	"github.com/balaji-balu/offsetup/internal/telemetry"
)

var installCmd = &cobra.Command{
	Use:     "install",
	Aliases: []string{"i"},
	Short:   "Install everything the manifest declares for this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := install(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d succeeded, %d failed, %d skipped)\n",
			rep.RunID, rep.Status,
			rep.Count(report.StateSucceeded), rep.Count(report.StateFailed), rep.Count(report.StateSkipped))
		exitCode = rep.ExitCode()
		return nil
	},
}

func install(ctx context.Context) (*report.Report, error) {
	m, rt, p, err := loadPlan(ctx, settings)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitTracer(ctx, telemetry.Options{
		Exporter: settings.Telemetry.Exporter,
		Endpoint: settings.Telemetry.Endpoint,
		Service:  "offsetup",
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("trace shutdown", zap.Error(err))
		}
	}()

	met := metrics.New()
	if settings.Metrics.Addr != "" {
		met.StartServer(ctx, settings.Metrics.Addr, log)
	}

	d, done, err := deps(ctx, settings, m)
	defer done.Close()
	if err != nil {
		return nil, err
	}

	log.Info("installing",
		zap.String("manifest", p.Manifest),
		zap.String("platform", p.Platform),
		zap.String("offsetup", version),
		zap.Int("steps", len(p.Steps)),
	)
	eng := engine.New(d, engine.Options{
		Concurrency: settings.Engine.Concurrency,
		DryRun:      settings.DryRun || m.DryRun,
		Logger:      log,
		Metrics:     met,
	})
	rep := eng.Run(ctx, p)
	rep.Runtime = rt.String()

	out, closeSinks := sinks(settings)
	defer closeSinks.Close()
	if err := out.Send(context.WithoutCancel(ctx), rep); err != nil {
		log.Warn("report delivery incomplete", zap.Error(err))
	}
	return rep, nil
}
