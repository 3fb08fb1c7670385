// Package platform detects the running OS and picks the matching platform
// branch of a manifest.
package platform

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/pkg/manifest"
	"github.com/balaji-balu/offsetup/pkg/version"
)

// Runtime describes the machine offsetup is running on.
type Runtime struct {
	OS      string `json:"os"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
	// Aliases are other names for Version, e.g. a Windows release id.
	Aliases []string `json:"aliases,omitempty"`
}

func (r Runtime) String() string {
	return fmt.Sprintf("%s %s (%s)", r.OS, r.Version, r.Arch)
}

func (r Runtime) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("os", r.OS)
	enc.AddString("version", r.Version)
	enc.AddString("arch", r.Arch)
	return nil
}

var archAliases = map[string]string{
	"amd64":   "x86_64",
	"x64":     "x86_64",
	"arm64":   "aarch64",
	"386":     "x86_32",
	"i386":    "x86_32",
	"i686":    "x86_32",
	"x86":     "x86_32",
	"armv7l":  "arm",
	"ppc64le": "ppc64le",
}

// NormalizeArch maps GOARCH and uname spellings onto one name.
func NormalizeArch(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if n, ok := archAliases[a]; ok {
		return n
	}
	return a
}

// Selection is the platform branch chosen for a run.
type Selection struct {
	Platform   *manifest.Platform
	Runtime    Runtime
	Constraint string
}

// Select picks the platform keyed by rt.OS. The key match ignores case;
// the _shared entry is never eligible.
func Select(m *manifest.Manifest, rt Runtime) (*Selection, error) {
	if strings.EqualFold(rt.OS, manifest.SharedKey) {
		return nil, fault.New(fault.ErrUnsupportedPlatform, "%q is not a platform", rt.OS)
	}
	p := m.Platform(rt.OS)
	if p == nil {
		return nil, fault.New(fault.ErrUnsupportedPlatform, "manifest %q has no entry for %s", m.Name, rt.OS)
	}

	constraint, err := matchVersion(p, rt)
	if err != nil {
		return nil, err
	}

	if p.Arch != "" && NormalizeArch(p.Arch) != NormalizeArch(rt.Arch) {
		return nil, fault.New(fault.ErrUnsupportedArch, "%s requires %s, running on %s", p.Name, p.Arch, rt.Arch)
	}
	return &Selection{Platform: p, Runtime: rt, Constraint: constraint}, nil
}

// matchVersion returns the first constraint satisfied by the runtime
// version or one of its aliases. A malformed constraint or primary version
// is fatal; malformed aliases are ignored. An empty list matches nothing.
func matchVersion(p *manifest.Platform, rt Runtime) (string, error) {
	if len(p.Versions) == 0 {
		return "", fault.New(fault.ErrUnsupportedVersion, "%s declares no versions", p.Name)
	}
	if _, err := version.Parse(rt.Version); err != nil {
		return "", fmt.Errorf("runtime version: %w", err)
	}
	candidates := append([]string{rt.Version}, rt.Aliases...)
	for _, expr := range p.Versions {
		c, err := version.ParseConstraint(expr)
		if err != nil {
			return "", fmt.Errorf("platform %s: %w", p.Name, err)
		}
		for _, v := range candidates {
			ok, err := c.Check(v)
			if err != nil {
				if errors.Is(err, fault.ErrInvalidVersion) {
					continue
				}
				return "", err
			}
			if ok {
				return expr, nil
			}
		}
	}
	return "", fault.New(fault.ErrUnsupportedVersion, "%s %s does not satisfy %s", p.Name, rt.Version, strings.Join(p.Versions, " | "))
}
