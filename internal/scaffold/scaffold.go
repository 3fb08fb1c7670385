// Package scaffold writes starter manifests for a project.
package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/balaji-balu/offsetup/internal/planner"
	"github.com/balaji-balu/offsetup/internal/platform"
	"github.com/balaji-balu/offsetup/internal/scanner"
)

const FileName = "offsetup.yml"

var ErrExists = errors.New("manifest already exists")

// toolchains lists the packages providing a language per package manager.
var toolchains = map[string]map[scanner.Language][]string{
	"apt": {
		scanner.Go:     {"golang"},
		scanner.NodeJS: {"nodejs", "npm"},
		scanner.Python: {"python3", "python3-pip"},
		scanner.Rust:   {"rustc", "cargo"},
	},
	"yum": {
		scanner.Go:     {"golang"},
		scanner.NodeJS: {"nodejs", "npm"},
		scanner.Python: {"python3", "python3-pip"},
		scanner.Rust:   {"rust", "cargo"},
	},
	"dnf": {
		scanner.Go:     {"golang"},
		scanner.NodeJS: {"nodejs", "npm"},
		scanner.Python: {"python3", "python3-pip"},
		scanner.Rust:   {"rust", "cargo"},
	},
	"pacman": {
		scanner.Go:     {"go"},
		scanner.NodeJS: {"nodejs", "npm"},
		scanner.Python: {"python", "python-pip"},
		scanner.Rust:   {"rust"},
	},
	"apk": {
		scanner.Go:     {"go"},
		scanner.NodeJS: {"nodejs", "npm"},
		scanner.Python: {"python3", "py3-pip"},
		scanner.Rust:   {"rust", "cargo"},
	},
	"brew": {
		scanner.Go:     {"go"},
		scanner.NodeJS: {"node"},
		scanner.Python: {"python"},
		scanner.Rust:   {"rust"},
	},
	"choco": {
		scanner.Go:     {"golang"},
		scanner.NodeJS: {"nodejs"},
		scanner.Python: {"python"},
		scanner.Rust:   {"rust"},
	},
}

// Manifest renders a starter manifest named name for the runtime rt that
// installs the toolchains of langs.
func Manifest(name string, rt platform.Runtime, langs []scanner.Language) ([]byte, error) {
	osName := strings.ToLower(rt.OS)
	if osName == "" {
		return nil, fmt.Errorf("runtime os is required")
	}

	min := rt.Version
	if min == "" {
		min = "0"
	}
	section := yaml.MapSlice{{Key: "versions", Value: []string{">=" + min}}}
	if mgr := planner.DefaultManager(osName); mgr != "" {
		var pkgs []string
		for _, l := range langs {
			pkgs = append(pkgs, toolchains[mgr][l]...)
		}
		if len(pkgs) > 0 {
			section = append(section, yaml.MapItem{Key: mgr, Value: pkgs})
		}
	}

	doc := yaml.MapSlice{
		{Key: "name", Value: name},
		{Key: "version", Value: "0.1.0"},
		{Key: "dependencies", Value: yaml.MapSlice{
			{Key: "platforms", Value: yaml.MapSlice{
				{Key: osName, Value: section},
			}},
		}},
	}
	return yaml.Marshal(doc)
}

// Write scans dir and writes a starter manifest into it, refusing to
// replace an existing one unless force is set. It returns the file path.
func Write(dir string, rt platform.Runtime, force bool) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(abs, FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s: %w", path, ErrExists)
	}
	langs, err := scanner.Languages(abs)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", abs, err)
	}
	data, err := Manifest(filepath.Base(abs), rt, langs)
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}
