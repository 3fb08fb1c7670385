package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// Decode builds a Manifest from an already resolved document tree.
func Decode(n *yaml.Node) (*Manifest, error) {
	var m Manifest
	if err := m.UnmarshalYAML(n); err != nil {
		return nil, err
	}
	return &m, nil
}

func invalid(n *yaml.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if n != nil && n.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", n.Line, msg)
	}
	return fault.New(fault.ErrManifestValidation, "%s", msg)
}

// each walks a mapping node in document order.
func each(n *yaml.Node, fn func(key string, k, v *yaml.Node) error) error {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return invalid(n, "expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if err := fn(k.Value, k, v); err != nil {
			return err
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// stringList accepts a scalar or a sequence of scalars.
func stringList(n *yaml.Node) ([]string, error) {
	switch {
	case isNull(n):
		return nil, nil
	case n.Kind == yaml.ScalarNode:
		return []string{n.Value}, nil
	case n.Kind == yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, invalid(c, "expected a string")
			}
			out = append(out, c.Value)
		}
		return out, nil
	}
	return nil, invalid(n, "expected a string or a list of strings")
}

func scalar(n *yaml.Node, dst any) error {
	if isNull(n) {
		return nil
	}
	if err := n.Decode(dst); err != nil {
		return invalid(n, "%v", err)
	}
	return nil
}

func strategies(n *yaml.Node) ([]Strategy, error) {
	names, err := stringList(n)
	if err != nil {
		return nil, err
	}
	out := make([]Strategy, len(names))
	for i, s := range names {
		out[i] = Strategy(strings.ToLower(strings.TrimSpace(s)))
	}
	return out, nil
}

// UnmarshalYAML decodes the top-level manifest keys.
func (m *Manifest) UnmarshalYAML(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		switch key {
		case "name":
			return scalar(v, &m.Name)
		case "version":
			return scalar(v, &m.Version)
		case "debug":
			return scalar(v, &m.Debug)
		case "dry_run":
			return scalar(v, &m.DryRun)
		case "dependencies":
			return m.decodeDependencies(v)
		case "exposes":
			return m.Exposes.decode(v)
		}
		return invalid(k, "unknown key %q", key)
	})
}

func (m *Manifest) decodeDependencies(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		switch key {
		case "platforms":
			return each(v, func(name string, _, pv *yaml.Node) error {
				if name == SharedKey {
					m.Shared = pv
					return nil
				}
				p := Platform{Name: name}
				if err := p.decode(pv); err != nil {
					return fmt.Errorf("platform %s: %w", name, err)
				}
				m.Platforms = append(m.Platforms, p)
				return nil
			})
		case "applications":
			return each(v, func(name string, _, av *yaml.Node) error {
				a := Application{Name: name}
				if err := a.decode(av); err != nil {
					return fmt.Errorf("application %s: %w", name, err)
				}
				m.Applications = append(m.Applications, a)
				return nil
			})
		}
		return invalid(k, "unknown key %q under dependencies", key)
	})
}

func (p *Platform) decode(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		var err error
		switch key {
		case "versions":
			p.Versions, err = stringList(v)
		case "arch":
			err = scalar(v, &p.Arch)
		case "pre_install":
			p.PreInstall, err = stringList(v)
		case "source":
			p.Source = &SourceSpec{}
			err = p.Source.decode(v)
		case "download":
			p.Download, err = artifacts(v)
		case "install_prefix":
			err = scalar(v, &p.InstallPrefix)
		case "download_directory":
			err = scalar(v, &p.DownloadDirectory)
		case "install_all":
			err = scalar(v, &p.InstallAll)
		case "install_priority":
			p.InstallPriority, err = strategies(v)
		case "skip_install":
			err = scalar(v, &p.SkipInstall)
		case "fail_silently":
			err = scalar(v, &p.FailSilently)
		case "system":
			err = decodeManagers(v, &p.Managers)
		default:
			name, ok := ManagerName(key)
			if !ok {
				return invalid(k, "unknown key %q", key)
			}
			var sec ManagerSection
			sec, err = managerSection(name, v)
			p.Managers = append(p.Managers, sec)
		}
		return err
	})
}

func decodeManagers(n *yaml.Node, dst *[]ManagerSection) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		name, ok := ManagerName(key)
		if !ok {
			return invalid(k, "unknown package manager %q", key)
		}
		sec, err := managerSection(name, v)
		if err != nil {
			return err
		}
		*dst = append(*dst, sec)
		return nil
	})
}

// managerSection accepts a package list, a single package, or a mapping
// with "sharable" and "packages" lists.
func managerSection(name string, n *yaml.Node) (ManagerSection, error) {
	sec := ManagerSection{Manager: name}
	if n.Kind != yaml.MappingNode {
		pkgs, err := packages(n, false)
		sec.Packages = pkgs
		return sec, err
	}
	err := each(n, func(key string, k, v *yaml.Node) error {
		switch key {
		case "sharable", "shareable":
			pkgs, err := packages(v, true)
			sec.Packages = append(sec.Packages, pkgs...)
			return err
		case "packages":
			pkgs, err := packages(v, false)
			sec.Packages = append(sec.Packages, pkgs...)
			return err
		}
		return invalid(k, "unknown key %q in %s section", key, name)
	})
	return sec, err
}

func packages(n *yaml.Node, sharable bool) ([]Package, error) {
	if n.Kind == yaml.SequenceNode {
		var out []Package
		for _, c := range n.Content {
			if c.Kind == yaml.MappingNode {
				var p struct {
					Name     string `yaml:"name"`
					Sharable bool   `yaml:"sharable"`
				}
				if err := c.Decode(&p); err != nil {
					return nil, invalid(c, "%v", err)
				}
				out = append(out, Package{Name: p.Name, Sharable: p.Sharable || sharable})
				continue
			}
			if c.Kind != yaml.ScalarNode {
				return nil, invalid(c, "expected a package name")
			}
			out = append(out, Package{Name: c.Value, Sharable: sharable})
		}
		return out, nil
	}
	names, err := stringList(n)
	if err != nil {
		return nil, err
	}
	out := make([]Package, len(names))
	for i, s := range names {
		out[i] = Package{Name: s, Sharable: sharable}
	}
	return out, nil
}

func (s *SourceSpec) decode(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		switch key {
		case "download":
			list, err := artifacts(v)
			if err != nil {
				return err
			}
			if len(list) != 1 {
				return invalid(v, "source takes exactly one download")
			}
			s.Download = &list[0]
			return nil
		case "download_directory":
			return scalar(v, &s.DownloadDirectory)
		case "system":
			return decodeManagers(v, &s.Build)
		case "install":
			var err error
			s.Install, err = stringList(v)
			return err
		}
		if name, ok := ManagerName(key); ok {
			sec, err := managerSection(name, v)
			s.Build = append(s.Build, sec)
			return err
		}
		return invalid(k, "unknown key %q in source", key)
	})
}

// artifacts accepts a single artifact or a list of them.
func artifacts(n *yaml.Node) ([]Artifact, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		var a Artifact
		if err := a.UnmarshalYAML(n); err != nil {
			return nil, err
		}
		return []Artifact{a}, nil
	}
	out := make([]Artifact, 0, len(n.Content))
	for _, c := range n.Content {
		var a Artifact
		if err := a.UnmarshalYAML(c); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// UnmarshalYAML accepts a bare URI or a mapping.
func (a *Artifact) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		a.URI = n.Value
		return nil
	}
	return each(n, func(key string, k, v *yaml.Node) error {
		switch key {
		case "uri", "url":
			return scalar(v, &a.URI)
		case "sha512":
			return scalar(v, &a.SHA512)
		case "extract":
			return scalar(v, &a.Extract)
		case "sharable", "shareable":
			return scalar(v, &a.Sharable)
		}
		return invalid(k, "unknown key %q in download", key)
	})
}

func (a *Application) decode(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		var err error
		switch key {
		case "pkg":
			err = scalar(v, &a.Pkg)
		case "version":
			err = scalar(v, &a.Version)
		case "env":
			err = scalar(v, &a.Env)
		case "features":
			a.Features, err = stringList(v)
		case "skip_install":
			err = scalar(v, &a.SkipInstall)
		case "fail_silently":
			err = scalar(v, &a.FailSilently)
		case "install_priority":
			a.InstallPriority, err = strategies(v)
		case "users":
			err = scalar(v, &a.Users)
		case "databases":
			err = scalar(v, &a.Databases)
		default:
			return invalid(k, "unknown key %q", key)
		}
		return err
	})
}

func (e *Exposes) decode(n *yaml.Node) error {
	return each(n, func(key string, k, v *yaml.Node) error {
		if key != "ports" {
			return invalid(k, "unknown key %q under exposes", key)
		}
		return each(v, func(proto string, _, pv *yaml.Node) error {
			set := PortSet{Protocol: strings.ToLower(proto)}
			if pv.Kind == yaml.ScalarNode && !isNull(pv) {
				var p int
				if err := scalar(pv, &p); err != nil {
					return err
				}
				set.Ports = []int{p}
			} else if err := scalar(pv, &set.Ports); err != nil {
				return err
			}
			e.Ports = append(e.Ports, set)
			return nil
		})
	})
}
