package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Detector struct {
	GOOS      string
	GOARCH    string
	OSRelease string
	Run       Runner
	// Override replaces detected fields that are set.
	Override Runtime
}

func NewDetector() *Detector {
	return &Detector{
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		OSRelease: "/etc/os-release",
		Run:       execRunner,
	}
}

var osReleaseIDs = map[string]string{
	"rhel":          "redhat",
	"manjaro-arm":   "manjaro",
	"archarm":       "arch",
	"opensuse-leap": "opensuse",
}

func (d *Detector) Detect(ctx context.Context) (Runtime, error) {
	if d.Override.OS != "" && d.Override.Version != "" && d.Override.Arch != "" {
		return d.Override, nil
	}

	var rt Runtime
	var err error
	switch d.GOOS {
	case "linux":
		rt, err = d.linux()
	case "darwin":
		rt, err = d.mac(ctx)
	case "windows":
		rt, err = d.windows(ctx)
	default:
		rt = Runtime{OS: d.GOOS}
	}
	if err != nil {
		return Runtime{}, err
	}
	rt.Arch = NormalizeArch(d.GOARCH)

	if d.Override.OS != "" {
		rt.OS = d.Override.OS
	}
	if d.Override.Version != "" {
		rt.Version, rt.Aliases = d.Override.Version, nil
	}
	if d.Override.Arch != "" {
		rt.Arch = NormalizeArch(d.Override.Arch)
	}
	return rt, nil
}

func (d *Detector) linux() (Runtime, error) {
	f, err := os.Open(d.OSRelease)
	if err != nil {
		return Runtime{}, fmt.Errorf("failed to read os release: %w", err)
	}
	defer f.Close()

	env, err := godotenv.Parse(f)
	if err != nil {
		return Runtime{}, fmt.Errorf("failed to parse %s: %w", d.OSRelease, err)
	}
	id := strings.ToLower(env["ID"])
	if alias, ok := osReleaseIDs[id]; ok {
		id = alias
	}
	v := env["VERSION_ID"]
	if v == "" {
		// rolling releases carry no version
		v = "0"
	}
	return Runtime{OS: id, Version: v}, nil
}

func (d *Detector) mac(ctx context.Context) (Runtime, error) {
	out, err := d.Run(ctx, "sw_vers", "-productVersion")
	if err != nil {
		return Runtime{}, fmt.Errorf("sw_vers: %w", err)
	}
	return Runtime{OS: "mac", Version: strings.TrimSpace(string(out))}, nil
}

func (d *Detector) windows(ctx context.Context) (Runtime, error) {
	out, err := d.Run(ctx, "cmd", "/c", "ver")
	if err != nil {
		return Runtime{}, fmt.Errorf("ver: %w", err)
	}
	rt, ok := parseVer(string(out))
	if !ok {
		return Runtime{}, fmt.Errorf("unexpected ver output %q", strings.TrimSpace(string(out)))
	}
	return rt, nil
}
