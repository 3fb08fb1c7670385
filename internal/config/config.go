// Package config layers offsetup settings from defaults, config files,
// OFFSETUP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/balaji-balu/offsetup/pkg/manifest"
)

const EnvPrefix = "OFFSETUP"

type Settings struct {
	Manifest        string `mapstructure:"manifest"`
	Debug           bool   `mapstructure:"debug"`
	DryRun          bool   `mapstructure:"dry_run"`
	Verbose         int    `mapstructure:"verbose"`
	InstallPriority string `mapstructure:"install_priority"`
	LogFile         string `mapstructure:"log_file"`

	Engine struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"engine"`

	Download struct {
		Directory string        `mapstructure:"directory"`
		Retries   int           `mapstructure:"retries"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"download"`

	OCI struct {
		Username string `mapstructure:"username"`
		TokenEnv string `mapstructure:"token_env"`
		Cache    string `mapstructure:"cache"`
	} `mapstructure:"oci"`

	Source struct {
		Directory string `mapstructure:"directory"`
		TokenEnv  string `mapstructure:"token_env"`
	} `mapstructure:"source"`

	Journal struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"journal"`

	Report struct {
		NATSURL     string `mapstructure:"nats_url"`
		NATSSubject string `mapstructure:"nats_subject"`
		WebhookURL  string `mapstructure:"webhook_url"`
	} `mapstructure:"report"`

	Telemetry struct {
		Exporter string `mapstructure:"exporter"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"telemetry"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Provision struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"provision"`

	Env struct {
		File   string            `mapstructure:"file"`
		Values map[string]string `mapstructure:"values"`
	} `mapstructure:"env"`

	Runtime struct {
		OS      string `mapstructure:"os"`
		Version string `mapstructure:"version"`
		Arch    string `mapstructure:"arch"`
	} `mapstructure:"runtime"`

	Ports struct {
		Firewall string `mapstructure:"firewall"`
	} `mapstructure:"ports"`

	Serve struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"serve"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("manifest", "offsetup.yml")
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("download.directory", ".offsetup/downloads")
	v.SetDefault("download.retries", 3)
	v.SetDefault("download.timeout", 10*time.Minute)
	v.SetDefault("oci.cache", ".offsetup/oci")
	v.SetDefault("oci.token_env", "OFFSETUP_OCI_TOKEN")
	v.SetDefault("source.directory", ".offsetup/src")
	v.SetDefault("source.token_env", "GITHUB_TOKEN")
	v.SetDefault("journal.path", ".offsetup/journal.db")
	v.SetDefault("report.nats_subject", "offsetup.reports")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("ports.firewall", "none")
	v.SetDefault("serve.addr", ":8080")
}

// Init prepares v: defaults, the config/<RUN_MODE>.yaml layer under dir,
// an optional settings file, and OFFSETUP_* environment variables.
func Init(v *viper.Viper, dir, settingsFile string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	mode := os.Getenv("RUN_MODE")
	if mode == "" {
		mode = "development"
	}
	v.SetConfigFile(filepath.Join(dir, "config", mode+".yaml"))
	if err := v.ReadInConfig(); err != nil && !notFound(err) {
		return fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
	}

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", settingsFile, err)
		}
	}
	return nil
}

func notFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

// Load decodes v into Settings.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.Engine.Concurrency <= 0 {
		return nil, fmt.Errorf("engine.concurrency must be positive, got %d", s.Engine.Concurrency)
	}
	if _, err := ParsePriority(s.InstallPriority); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParsePriority reads a comma separated list of install strategies.
func ParsePriority(s string) ([]manifest.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []manifest.Strategy
	for _, part := range strings.Split(s, ",") {
		st := manifest.Strategy(strings.ToLower(strings.TrimSpace(part)))
		if !validStrategy(st) {
			return nil, fmt.Errorf("install_priority: unknown strategy %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

func validStrategy(s manifest.Strategy) bool {
	for _, known := range manifest.Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// Values returns env.values with upper-case keys. Viper lower-cases map
// keys, environment variable names are upper case.
func (s *Settings) Values() map[string]string {
	out := make(map[string]string, len(s.Env.Values))
	for k, v := range s.Env.Values {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// Secret returns the value of the environment variable named by key, or
// "" when key is empty.
func Secret(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}
