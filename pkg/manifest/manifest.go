// Package manifest holds the typed form of an offsetup.yml document.
package manifest

import (
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// SharedKey names the platform entry that only holds fragments for $ref.
const SharedKey = "_shared"

// Strategy is a way of installing an application.
type Strategy string

const (
	Docker Strategy = "docker"
	Native Strategy = "native"
	Source Strategy = "source"
)

// Strategies is the default install_priority.
var Strategies = []Strategy{Docker, Native, Source}

// Managers is the closed set of package managers a platform may list.
var Managers = []string{
	"apt", "apt_get", "aptitude", "equo", "emerge", "flatpak", "guix", "nix",
	"openpkg", "opkg", "pacman", "ppm", "pisi", "yum", "dnf", "up2date",
	"urpmi", "slackpkg", "slapt_get", "snap", "swaret", "choco", "brew",
	"pkg", "0install", "apk",
}

var managerAliases = map[string]string{
	"apt-get":   "apt_get",
	"slapt-get": "slapt_get",
	"_0install": "0install",
}

// ManagerName normalizes a manifest key to a package manager name. ok is
// false if the key is not a known manager.
func ManagerName(key string) (string, bool) {
	k := strings.ToLower(key)
	if a, ok := managerAliases[k]; ok {
		k = a
	}
	for _, m := range Managers {
		if m == k {
			return m, true
		}
	}
	return "", false
}

// Manifest is a parsed offsetup.yml.
type Manifest struct {
	Name    string
	Version string
	Debug   bool
	DryRun  bool

	Platforms    []Platform
	Applications []Application
	Exposes      Exposes

	// Shared is the raw _shared subtree, kept for reference only.
	Shared *yaml.Node
	// Dir is the directory of the manifest file; relative paths resolve
	// against it.
	Dir string
}

// Platform returns the platform named name, ignoring case, or nil.
func (m *Manifest) Platform(name string) *Platform {
	for i := range m.Platforms {
		if strings.EqualFold(m.Platforms[i].Name, name) {
			return &m.Platforms[i]
		}
	}
	return nil
}

// Application returns the application named name, or nil.
func (m *Manifest) Application(name string) *Application {
	for i := range m.Applications {
		if m.Applications[i].Name == name {
			return &m.Applications[i]
		}
	}
	return nil
}

// Platform holds what one operating system entry installs.
type Platform struct {
	Name              string
	Versions          []string
	Arch              string
	PreInstall        []string
	Managers          []ManagerSection
	Source            *SourceSpec
	Download          []Artifact
	InstallPrefix     string
	DownloadDirectory string
	InstallAll        bool
	InstallPriority   []Strategy
	SkipInstall       bool
	// FailSilently is parsed but platform steps always fail the run.
	FailSilently bool
}

// ManagerSection lists packages for one package manager, in declared order.
type ManagerSection struct {
	Manager  string
	Packages []Package
}

// Package is one entry of a ManagerSection.
type Package struct {
	Name     string
	Sharable bool
}

// SourceSpec describes a build from source.
type SourceSpec struct {
	Download          *Artifact
	DownloadDirectory string
	// Build lists build-system packages needed before the install commands.
	Build   []ManagerSection
	Install []string
}

// Artifact is a file to download, verify and optionally extract.
type Artifact struct {
	URI      string `yaml:"uri" json:"uri"`
	SHA512   string `yaml:"sha512" json:"sha512,omitempty"`
	Extract  bool   `yaml:"extract" json:"extract,omitempty"`
	Sharable bool   `yaml:"sharable" json:"sharable,omitempty"`
}

// Application is one entry of the applications list.
type Application struct {
	Name            string
	Pkg             string
	Version         string
	Env             string
	Features        []string
	SkipInstall     bool
	FailSilently    bool
	InstallPriority []Strategy
	Users           []User
	Databases       []Database
}

// Empty reports whether the application asks for nothing at all.
func (a *Application) Empty() bool {
	return a.Pkg == "" && a.Env == "" && len(a.Users) == 0 && len(a.Databases) == 0
}

// User is a database role an application needs.
type User struct {
	Name string `yaml:"name"`
	// Password is a literal or "$VAR" naming an environment variable.
	Password string `yaml:"password" json:"-"`
}

// MarshalLogObject masks literal passwords.
func (u User) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", u.Name)
	if strings.HasPrefix(u.Password, "$") {
		enc.AddString("password", u.Password)
	} else if u.Password != "" {
		enc.AddString("password", "***")
	}
	return nil
}

// Database is a database an application needs.
type Database struct {
	Name  string `yaml:"name"`
	Owner string `yaml:"owner"`
}

// Exposes lists the ports to open.
type Exposes struct {
	Ports []PortSet
}

// PortSet is the ports of one protocol.
type PortSet struct {
	Protocol string
	Ports    []int
}
