package capability

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/gitfetcher"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

// Installer installs an application with one strategy. It returns the
// address the application can be reached at when it knows one.
type Installer interface {
	Install(ctx context.Context, app plan.ApplicationInstall) (string, error)
}

// Installers maps each strategy to its installer.
type Installers map[manifest.Strategy]Installer

// DockerInstaller runs the application's image.
type DockerInstaller struct {
	Runtime ContainerRuntime
}

func (d DockerInstaller) Install(ctx context.Context, app plan.ApplicationInstall) (string, error) {
	return d.Runtime.Run(ctx, app)
}

// NativeInstaller installs the application's package with the platform's
// package manager.
type NativeInstaller struct {
	Packages PackageManager
}

func (n NativeInstaller) Install(ctx context.Context, app plan.ApplicationInstall) (string, error) {
	if app.Manager == "" {
		return "", fault.New(fault.ErrCapabilityUnavailable, "no package manager for %s", app.App)
	}
	return "", n.Packages.Install(ctx, app.Manager, app.Pkg)
}

// SourceInstaller clones a git locator and builds it with make.
type SourceInstaller struct {
	Shell Shell
	// Dir holds one checkout per application.
	Dir    string
	Token  string
	Logger *zap.Logger
}

func (s SourceInstaller) Install(ctx context.Context, app plan.ApplicationInstall) (string, error) {
	if !gitfetcher.IsRepo(app.Pkg) {
		return "", fault.New(fault.ErrCapabilityUnavailable, "%s is not a repository locator", app.Pkg)
	}
	dir := filepath.Join(s.Dir, app.App)
	g := &gitfetcher.GitFetcher{RepoURL: app.Pkg, LocalDir: dir, Token: s.Token, Logger: s.Logger}
	if err := g.CloneOrPull(ctx); err != nil {
		return "", fault.Wrap(fault.ErrPackageManager, err, "fetch %s", app.Pkg)
	}
	if _, err := os.Stat(filepath.Join(dir, "Makefile")); err != nil {
		return "", fault.New(fault.ErrCapabilityUnavailable, "%s has no Makefile", app.Pkg)
	}

	install := "make install"
	if app.InstallPrefix != "" {
		install += " PREFIX=" + app.InstallPrefix
	}
	for _, line := range []string{"make", install} {
		if err := s.Shell.Run(ctx, line, dir); err != nil {
			return "", classify(fault.ErrPackageManager, err, "build %s", app.App)
		}
	}
	return "", nil
}
