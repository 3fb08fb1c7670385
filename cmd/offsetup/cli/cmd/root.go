package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/config"
	"github.com/balaji-balu/offsetup/internal/logger"
)

var (
	// version is set at build time with -ldflags "-X ...cmd.version=".
	version = "v0.1.0"

	settingsFile string
	settings     *config.Settings
	log          *zap.Logger
	// exitCode is set by commands whose outcome is not an error, like a
	// failed install that was reported.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "offsetup",
		Short: "Bootstrap a machine from a declarative manifest",
		Long: `offsetup reads a manifest describing the packages, downloads,
applications, users, databases and ports a node needs, selects the entry
for the running platform and installs it.`,
		Version:      version,
		SilenceUsage: true,
	}
)

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	defer func() {
		if log != nil {
			_ = log.Sync()
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	f := rootCmd.PersistentFlags()
	f.StringP("config", "c", "offsetup.yml", "path to the manifest")
	f.StringVar(&settingsFile, "settings", "", "settings file merged over config/<RUN_MODE>.yaml")
	f.BoolP("debug", "d", false, "enable debug output")
	f.Bool("dry-run", false, "plan and report without changing the system")
	f.CountP("verbose", "v", "increase verbosity, repeatable")
	f.String("install-priority", "", "comma separated strategies overriding every install_priority")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.String("log-file", "", "also write logs to this file")

	viper.BindPFlag("manifest", f.Lookup("config"))
	viper.BindPFlag("debug", f.Lookup("debug"))
	viper.BindPFlag("dry_run", f.Lookup("dry-run"))
	viper.BindPFlag("verbose", f.Lookup("verbose"))
	viper.BindPFlag("install_priority", f.Lookup("install-priority"))
	viper.BindPFlag("metrics.addr", f.Lookup("metrics-addr"))
	viper.BindPFlag("log_file", f.Lookup("log-file"))
	viper.BindEnv("verbose", config.EnvPrefix+"_VERBOSITY", config.EnvPrefix+"_VERBOSE")

	rootCmd.AddCommand(installCmd, planCmd, newCmd, statusCmd, serveCmd)
}

func initConfig() {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	if err := config.Init(viper.GetViper(), dir, settingsFile); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if settings, err = config.Load(viper.GetViper()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initLogger() {
	env := os.Getenv("RUN_MODE")
	if env == "" {
		env = "production"
	}
	if settings.Debug || settings.Verbose > 0 {
		env = "development"
	}
	verbosity := settings.Verbose
	if settings.Debug && verbosity == 0 {
		verbosity = 1
	}
	var err error
	log, err = logger.New(logger.Options{Env: env, Verbosity: verbosity, File: settings.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to init logger:", err)
		os.Exit(1)
	}
}
