// Package plan defines the ordered steps an install run executes.
package plan

import (
	"fmt"
	"strings"

	"github.com/balaji-balu/offsetup/pkg/manifest"
)

// Kind names what a step does.
type Kind string

const (
	KindCommand            Kind = "Command"
	KindPackageInstall     Kind = "PackageManagerInstall"
	KindDownloadExtract    Kind = "DownloadExtract"
	KindApplicationInstall Kind = "ApplicationInstall"
	KindEnvBind            Kind = "EnvBind"
	KindUserProvision      Kind = "UserProvision"
	KindDatabaseProvision  Kind = "DatabaseProvision"
	KindPortExpose         Kind = "PortExpose"
)

// Phase orders groups of steps; a step never runs before every step of a
// lower phase has settled.
type Phase int

const (
	PhasePreInstall Phase = iota + 1
	PhasePackages
	PhaseSource
	PhaseDownloads
	PhaseApplications
	PhasePorts
)

var phaseNames = map[Phase]string{
	PhasePreInstall:   "pre_install",
	PhasePackages:     "packages",
	PhaseSource:       "source",
	PhaseDownloads:    "downloads",
	PhaseApplications: "applications",
	PhasePorts:        "ports",
}

func (p Phase) String() string { return phaseNames[p] }

// Action is the closed set of things a step can do.
type Action interface {
	Kind() Kind
	String() string
	action()
}

// Step is one planned unit of work.
type Step struct {
	ID    string
	Phase Phase
	// Owner is the application a step belongs to; empty for platform steps.
	Owner        string
	FailSilently bool
	// SkipInstall marks install steps of a platform or application declared
	// skip_install; they are reported Skipped.
	SkipInstall bool
	Action      Action
}

func (s Step) Kind() Kind { return s.Action.Kind() }

func (s Step) String() string {
	return fmt.Sprintf("%-20s %s", s.Kind(), s.Action)
}

// Plan is the ordered step list for one manifest on one platform.
type Plan struct {
	Manifest string
	Platform string
	Steps    []Step
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Command runs a shell command line.
type Command struct {
	Line string
	Dir  string
}

// PackageInstall installs one package through a system package manager.
type PackageInstall struct {
	Manager  string
	Package  string
	Sharable bool
	// Build is set for build dependencies of a source install.
	Build bool
}

// DownloadExtract fetches, verifies and optionally unpacks an artifact.
type DownloadExtract struct {
	URI       string
	SHA512    string
	Extract   bool
	Sharable  bool
	TargetDir string
}

// ApplicationInstall installs an application with the first strategy that
// works.
type ApplicationInstall struct {
	App        string
	Pkg        string
	Version    string
	Features   []string
	Strategies []manifest.Strategy
	// Manager is the package manager the native strategy uses.
	Manager       string
	InstallPrefix string
}

// ValueSource says where an EnvBind gets its value at execution time.
type ValueSource struct {
	// App whose install result supplies the value.
	App string
	// Key looked up in configuration when the install produced nothing.
	Key string
}

type EnvBind struct {
	Name   string
	Source ValueSource
}

type UserProvision struct {
	App  string
	Name string
	// Credential is a literal secret or "$VAR".
	Credential string
}

type DatabaseProvision struct {
	App   string
	Name  string
	Owner string
}

type PortExpose struct {
	Protocol string
	Port     int
}

func (Command) Kind() Kind            { return KindCommand }
func (PackageInstall) Kind() Kind     { return KindPackageInstall }
func (DownloadExtract) Kind() Kind    { return KindDownloadExtract }
func (ApplicationInstall) Kind() Kind { return KindApplicationInstall }
func (EnvBind) Kind() Kind            { return KindEnvBind }
func (UserProvision) Kind() Kind      { return KindUserProvision }
func (DatabaseProvision) Kind() Kind  { return KindDatabaseProvision }
func (PortExpose) Kind() Kind         { return KindPortExpose }

func (Command) action()            {}
func (PackageInstall) action()     {}
func (DownloadExtract) action()    {}
func (ApplicationInstall) action() {}
func (EnvBind) action()            {}
func (UserProvision) action()      {}
func (DatabaseProvision) action()  {}
func (PortExpose) action()         {}

func (c Command) String() string { return c.Line }

func (p PackageInstall) String() string { return p.Manager + " " + p.Package }

func (d DownloadExtract) String() string {
	if d.Extract {
		return d.URI + " -> " + d.TargetDir + " (extract)"
	}
	return d.URI + " -> " + d.TargetDir
}

func (a ApplicationInstall) String() string {
	strategies := make([]string, len(a.Strategies))
	for i, s := range a.Strategies {
		strategies[i] = string(s)
	}
	return fmt.Sprintf("%s [%s]", a.App, strings.Join(strategies, " > "))
}

func (e EnvBind) String() string { return e.Name }

// String never includes the credential.
func (u UserProvision) String() string { return u.App + "/" + u.Name }

func (d DatabaseProvision) String() string {
	return fmt.Sprintf("%s/%s owner=%s", d.App, d.Name, d.Owner)
}

func (p PortExpose) String() string { return fmt.Sprintf("%s/%d", p.Protocol, p.Port) }
