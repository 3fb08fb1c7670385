package capability

import (
	"context"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// PackageManager installs one package with a system package manager.
type PackageManager interface {
	Install(ctx context.Context, manager, pkg string) error
}

// installCommands maps a manager to the command line that installs a
// package non-interactively. The package name is appended.
var installCommands = map[string][]string{
	"apt":       {"apt-get", "install", "-y"},
	"apt_get":   {"apt-get", "install", "-y"},
	"aptitude":  {"aptitude", "install", "-y"},
	"equo":      {"equo", "install"},
	"emerge":    {"emerge", "--noreplace"},
	"flatpak":   {"flatpak", "install", "-y"},
	"guix":      {"guix", "install"},
	"nix":       {"nix-env", "-i"},
	"openpkg":   {"openpkg", "build"},
	"opkg":      {"opkg", "install"},
	"pacman":    {"pacman", "-S", "--needed", "--noconfirm"},
	"ppm":       {"ppm", "install"},
	"pisi":      {"pisi", "install", "-y"},
	"yum":       {"yum", "install", "-y"},
	"dnf":       {"dnf", "install", "-y"},
	"up2date":   {"up2date", "-i"},
	"urpmi":     {"urpmi", "--auto"},
	"slackpkg":  {"slackpkg", "install"},
	"slapt_get": {"slapt-get", "--install"},
	"snap":      {"snap", "install"},
	"swaret":    {"swaret", "--install"},
	"choco":     {"choco", "install", "-y"},
	"brew":      {"brew", "install"},
	"pkg":       {"pkg", "install", "-y"},
	"0install":  {"0install", "add"},
	"apk":       {"apk", "add"},
}

// InstallCommand returns the argv that installs pkg with manager.
func InstallCommand(manager, pkg string) ([]string, bool) {
	base, ok := installCommands[manager]
	if !ok {
		return nil, false
	}
	argv := make([]string, 0, len(base)+1)
	argv = append(argv, base...)
	return append(argv, pkg), true
}

// Managers runs package managers through a Runner.
type Managers struct {
	Runner Runner
}

func (m Managers) Install(ctx context.Context, manager, pkg string) error {
	argv, ok := InstallCommand(manager, pkg)
	if !ok {
		return fault.New(fault.ErrCapabilityUnavailable, "no install command for package manager %q", manager)
	}
	if _, err := m.Runner.Run(ctx, "", argv[0], argv[1:]...); err != nil {
		return classify(fault.ErrPackageManager, err, "%s %s", manager, pkg)
	}
	return nil
}
