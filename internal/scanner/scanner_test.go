package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
}

func TestLanguages(t *testing.T) {
	cases := map[string]struct {
		files []string
		want  []Language
	}{
		"go":       {[]string{"main.go", "pkg/a/a.go"}, []Language{Go}},
		"mixed":    {[]string{"cmd/main.go", "src/lib.RS"}, []Language{Go, Rust}},
		"nodejs":   {[]string{"index.js", "src/app.ts"}, []Language{NodeJS}},
		"python":   {[]string{"setup.py"}, []Language{Python}},
		"none":     {[]string{"README.md"}, []Language{}},
		"vendored": {[]string{"app.py", "node_modules/x/index.js", "vendor/y/y.go"}, []Language{Python}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tc.files...)
			got, err := Languages(dir)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLanguagesMissingDir(t *testing.T) {
	_, err := Languages(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
