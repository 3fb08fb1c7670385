// Package planner turns a selected platform branch and its manifest into an
// ordered install plan.
package planner

import (
	_ "crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/internal/platform"
	"github.com/balaji-balu/offsetup/internal/provision"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

// DefaultDownloadDir is where artifacts go when nothing else is configured.
const DefaultDownloadDir = ".offsetup/downloads"

// Options adjusts how a plan is built.
type Options struct {
	// InstallPriority, when set, replaces every platform and application
	// install_priority.
	InstallPriority []manifest.Strategy
	// DownloadDir is used when the platform names no download_directory.
	DownloadDir string
}

var defaultManagers = map[string]string{
	"ubuntu":  "apt",
	"debian":  "apt",
	"centos":  "yum",
	"redhat":  "yum",
	"fedora":  "dnf",
	"arch":    "pacman",
	"manjaro": "pacman",
	"alpine":  "apk",
	"mac":     "brew",
	"windows": "choco",
}

type builder struct {
	m     *manifest.Manifest
	p     *manifest.Platform
	opts  Options
	steps []plan.Step
	ids   map[string]int
	dirs  map[string]int
}

// Build plans the selected platform. Steps are ordered: pre_install,
// package managers, source, downloads, applications, exposed ports.
func Build(sel *platform.Selection, m *manifest.Manifest, opts Options) (*plan.Plan, error) {
	if sel == nil || sel.Platform == nil {
		return nil, fmt.Errorf("no platform selected")
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = DefaultDownloadDir
	}
	b := &builder{m: m, p: sel.Platform, opts: opts, ids: map[string]int{}, dirs: map[string]int{}}

	b.preInstall()
	b.packages()
	b.source()
	b.downloads()
	b.applications()
	b.ports()

	return &plan.Plan{Manifest: m.Name, Platform: sel.Platform.Name, Steps: b.steps}, nil
}

func (b *builder) add(id string, phase plan.Phase, a plan.Action) {
	b.steps = append(b.steps, plan.Step{
		ID:          b.uniqueID(id),
		Phase:       phase,
		SkipInstall: b.p.SkipInstall,
		Action:      a,
	})
}

func (b *builder) uniqueID(id string) string {
	b.ids[id]++
	if n := b.ids[id]; n > 1 {
		return fmt.Sprintf("%s#%d", id, n)
	}
	return id
}

func (b *builder) preInstall() {
	for i, line := range b.p.PreInstall {
		b.add(fmt.Sprintf("pre_install/%d", i), plan.PhasePreInstall, plan.Command{Line: line})
	}
}

func (b *builder) packages() {
	for _, sec := range b.p.Managers {
		for _, pkg := range sec.Packages {
			b.add("pkg/"+sec.Manager+"/"+pkg.Name, plan.PhasePackages, plan.PackageInstall{
				Manager:  sec.Manager,
				Package:  pkg.Name,
				Sharable: pkg.Sharable,
			})
		}
	}
}

func (b *builder) source() {
	src := b.p.Source
	if src == nil {
		return
	}
	var dir string
	if src.Download != nil {
		base := src.DownloadDirectory
		if base == "" {
			base = b.p.DownloadDirectory
		}
		step := b.download(*src.Download, base)
		dir = step.TargetDir
		b.add("source/download", plan.PhaseSource, step)
	}
	for _, sec := range src.Build {
		for _, pkg := range sec.Packages {
			b.add("source/pkg/"+sec.Manager+"/"+pkg.Name, plan.PhaseSource, plan.PackageInstall{
				Manager:  sec.Manager,
				Package:  pkg.Name,
				Sharable: pkg.Sharable,
				Build:    true,
			})
		}
	}
	for i, line := range src.Install {
		b.add(fmt.Sprintf("source/install/%d", i), plan.PhaseSource, plan.Command{Line: line, Dir: dir})
	}
}

func (b *builder) downloads() {
	for i, a := range b.p.Download {
		b.add(fmt.Sprintf("download/%d", i), plan.PhaseDownloads, b.download(a, b.p.DownloadDirectory))
	}
}

// download gives every artifact its own directory under base, named after
// its checksum so reruns land in the same place.
func (b *builder) download(a manifest.Artifact, base string) plan.DownloadExtract {
	if base == "" {
		base = b.opts.DownloadDir
	}
	if !filepath.IsAbs(base) && b.m.Dir != "" {
		base = filepath.Join(b.m.Dir, base)
	}
	key := strings.ToLower(a.SHA512)
	if !manifest.ValidSHA512(key) {
		key = digest.SHA256.FromString(a.URI).Encoded()
	}
	key = key[:16]
	b.dirs[key]++
	if n := b.dirs[key]; n > 1 {
		key = fmt.Sprintf("%s-%d", key, n)
	}
	return plan.DownloadExtract{
		URI:       a.URI,
		SHA512:    a.SHA512,
		Extract:   a.Extract,
		Sharable:  a.Sharable,
		TargetDir: filepath.Join(base, key),
	}
}

func (b *builder) strategies(app manifest.Application) []manifest.Strategy {
	switch {
	case len(b.opts.InstallPriority) > 0:
		return b.opts.InstallPriority
	case len(app.InstallPriority) > 0:
		return app.InstallPriority
	case len(b.p.InstallPriority) > 0:
		return b.p.InstallPriority
	}
	return []manifest.Strategy{manifest.Native}
}

func (b *builder) nativeManager() string {
	if len(b.p.Managers) > 0 {
		return b.p.Managers[0].Manager
	}
	return DefaultManager(b.p.Name)
}

// DefaultManager is the usual package manager of an OS, or "" if unknown.
func DefaultManager(os string) string {
	return defaultManagers[strings.ToLower(os)]
}

func (b *builder) applications() {
	var steps []plan.Step
	for _, app := range b.m.Applications {
		if app.Empty() {
			continue
		}
		if !app.SkipInstall && app.Pkg != "" {
			steps = append(steps, plan.Step{
				ID:           b.uniqueID("app/" + app.Name + "/install"),
				Phase:        plan.PhaseApplications,
				Owner:        app.Name,
				FailSilently: app.FailSilently,
				Action: plan.ApplicationInstall{
					App:           app.Name,
					Pkg:           app.Pkg,
					Version:       app.Version,
					Features:      app.Features,
					Strategies:    b.strategies(app),
					Manager:       b.nativeManager(),
					InstallPrefix: b.p.InstallPrefix,
				},
			})
		}
		for _, s := range provision.Derive(app) {
			s.ID = b.uniqueID(s.ID)
			steps = append(steps, s)
		}
	}
	b.steps = append(b.steps, provision.OrderDatabases(steps)...)
}

func (b *builder) ports() {
	for _, set := range b.m.Exposes.Ports {
		for _, port := range set.Ports {
			b.steps = append(b.steps, plan.Step{
				ID:     b.uniqueID(fmt.Sprintf("port/%s/%d", set.Protocol, port)),
				Phase:  plan.PhasePorts,
				Action: plan.PortExpose{Protocol: set.Protocol, Port: port},
			})
		}
	}
}

// ForRuntime selects the platform branch of m matching rt and plans it.
func ForRuntime(m *manifest.Manifest, rt platform.Runtime, opts Options) (*plan.Plan, error) {
	sel, err := platform.Select(m, rt)
	if err != nil {
		return nil, err
	}
	return Build(sel, m, opts)
}
