// Package scanner finds which programming languages a project uses.
package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type Language string

const (
	Go     Language = "go"
	NodeJS Language = "nodejs"
	Python Language = "python"
	Rust   Language = "rust"
)

var extensions = map[string]Language{
	".go": Go,
	".rs": Rust,
	".js": NodeJS,
	".ts": NodeJS,
	".py": Python,
}

var skipDirs = map[string]bool{
	".git":         true,
	".offsetup":    true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
}

// Languages walks dir and returns the languages of the source files found,
// sorted by name. Unreadable entries are ignored.
func Languages(dir string) ([]Language, error) {
	seen := map[Language]bool{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if lang, ok := extensions[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			seen[lang] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Language, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
