package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/balaji-balu/offsetup/internal/fault"
)

var (
	sha512Hex = regexp.MustCompile(`^[0-9a-fA-F]{128}$`)
	protocol  = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// ValidSHA512 reports whether s is a 128 character hex digest.
func ValidSHA512(s string) bool { return sha512Hex.MatchString(s) }

// Validate checks the rules the document shape alone cannot express.
// All problems are reported together.
func (m *Manifest) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(m.Name) == "" {
		add("name is required")
	}
	for _, p := range m.Platforms {
		windows := strings.EqualFold(p.Name, "windows")
		for i, a := range p.Download {
			if err := a.check(windows); err != nil {
				add("platform %s: download[%d]: %v", p.Name, i, err)
			}
		}
		if p.DownloadDirectory != "" && len(p.Download) == 0 && (p.Source == nil || p.Source.Download == nil) {
			add("platform %s: download_directory is set but nothing is downloaded", p.Name)
		}
		if src := p.Source; src != nil {
			switch {
			case src.Download != nil && src.DownloadDirectory == "":
				add("platform %s: source download requires download_directory", p.Name)
			case src.Download == nil && src.DownloadDirectory != "":
				add("platform %s: source download_directory requires download", p.Name)
			}
			if src.Download != nil {
				if err := src.Download.check(true); err != nil {
					add("platform %s: source download: %v", p.Name, err)
				}
			}
		}
		for _, s := range p.InstallPriority {
			if !knownStrategy(s) {
				add("platform %s: unknown install strategy %q", p.Name, s)
			}
		}
		for _, sec := range p.Managers {
			for _, pkg := range sec.Packages {
				if strings.TrimSpace(pkg.Name) == "" {
					add("platform %s: empty package name in %s", p.Name, sec.Manager)
				}
			}
		}
	}

	for _, a := range m.Applications {
		for _, s := range a.InstallPriority {
			if !knownStrategy(s) {
				add("application %s: unknown install strategy %q", a.Name, s)
			}
		}
		for i, u := range a.Users {
			if u.Name == "" {
				add("application %s: users[%d] has no name", a.Name, i)
			}
		}
		for i, d := range a.Databases {
			if d.Name == "" {
				add("application %s: databases[%d] has no name", a.Name, i)
			}
		}
	}

	for _, set := range m.Exposes.Ports {
		if !protocol.MatchString(set.Protocol) {
			add("exposes: invalid protocol name %q", set.Protocol)
		}
		for _, p := range set.Ports {
			if p < 1 || p > 65535 {
				add("exposes: %s port %d out of range", set.Protocol, p)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fault.Wrap(fault.ErrManifestValidation, errors.Join(errs...), "%s", m.Name)
}

func (a Artifact) check(checksumRequired bool) error {
	if a.URI == "" {
		return errors.New("uri is required")
	}
	u, err := url.Parse(a.URI)
	if err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "file", "oci", "":
	default:
		return fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	if a.SHA512 == "" {
		if checksumRequired {
			return errors.New("sha512 is required")
		}
		return nil
	}
	if !ValidSHA512(a.SHA512) {
		return errors.New("sha512 must be 128 hex characters")
	}
	return nil
}

func knownStrategy(s Strategy) bool {
	for _, k := range Strategies {
		if k == s {
			return true
		}
	}
	return false
}
