package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaji-balu/offsetup/internal/fault"
)

var sum = strings.Repeat("c3", 64)

var example = `
name: offsetup-example
version: 1.0
dependencies:
  platforms:
    _shared:
      packages:
        apt: [redis-server, postgresql]
      priority: [docker, native]
    ubuntu:
      versions: [">16.04"]
      pre_install: ["apt-get update"]
      apt: {$ref: "#/dependencies/platforms/_shared/packages/apt"}
      install_priority: {$ref: "#/dependencies/platforms/_shared/priority"}
    debian:
      versions: [">=9"]
      apt: {$ref: "#/dependencies/platforms/_shared/packages/apt"}
    windows:
      versions: [">=7600"]
      download_directory: C:\offsetup
      download:
        - uri: https://example.com/redis.zip
          sha512: ` + sum + `
          extract: true
  applications:
    redis:
      pkg: redis
      env: REDIS_URL
exposes:
  ports:
    tcp: [6379]
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsetup.yml")
	require.NoError(t, os.WriteFile(path, []byte(example), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), m.Dir)
	assert.Equal(t, "1.0", m.Version)

	u := m.Platform("ubuntu")
	require.NotNil(t, u)
	require.Len(t, u.Managers, 1)
	assert.Len(t, u.Managers[0].Packages, 2)
	assert.Len(t, u.InstallPriority, 2)
	assert.Len(t, m.Platform("debian").Managers[0].Packages, 2)
	assert.NotNil(t, m.Shared)
}

func TestParseFailures(t *testing.T) {
	cases := map[string]struct {
		src  string
		kind error
	}{
		"empty":       {"", fault.ErrManifestValidation},
		"not yaml":    {"name: [", fault.ErrManifestValidation},
		"cycle":       {"name: x\ndependencies: {platforms: {ubuntu: {$ref: \"#/dependencies/platforms/ubuntu\"}}}", fault.ErrCyclicReference},
		"missing ref": {"name: x\nexposes: {$ref: \"#/nope\"}", fault.ErrUnresolvedReference},
		"schema type": {"name: x\ndependencies: {applications: {redis: {skip_install: maybe}}}", fault.ErrManifestValidation},
		"unknown top": {"name: x\nextra: 1", fault.ErrManifestValidation},
		"bad port":    {"name: x\nexposes: {ports: {tcp: [0]}}", fault.ErrManifestValidation},
		"bad sha":     {"name: x\ndependencies: {platforms: {ubuntu: {download: {uri: a, sha512: zz}}}}", fault.ErrManifestValidation},
		"no name":     {"version: '1'", fault.ErrManifestValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := Parse([]byte(tc.src), ".")
			require.Error(t, err)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err) || strings.Contains(err.Error(), "failed to read manifest"))
}
