package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/offsetup/internal/fault"
)

func parse(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	return &n
}

func dump(t *testing.T, n *yaml.Node) string {
	t.Helper()
	out, err := yaml.Marshal(n)
	require.NoError(t, err)
	return string(out)
}

const shared = `
dependencies:
  platforms:
    _shared:
      ubuntu:
        apt: [redis-server, postgresql]
    ubuntu:
      versions: [">16.04"]
      apt:
        $ref: "#/dependencies/platforms/_shared/ubuntu/apt"
    debian:
      $ref: "#/dependencies/platforms/ubuntu"
`

func TestResolveExpandsNestedReferences(t *testing.T) {
	in := parse(t, shared)
	before := dump(t, in)

	out, err := Resolve(in)
	require.NoError(t, err)

	var got struct {
		Dependencies struct {
			Platforms map[string]struct {
				Versions []string `yaml:"versions"`
				Apt      []string `yaml:"apt"`
			} `yaml:"platforms"`
		} `yaml:"dependencies"`
	}
	require.NoError(t, out.Decode(&got))
	assert.Equal(t, []string{"redis-server", "postgresql"}, got.Dependencies.Platforms["ubuntu"].Apt)
	assert.Equal(t, []string{"redis-server", "postgresql"}, got.Dependencies.Platforms["debian"].Apt)
	assert.Equal(t, []string{">16.04"}, got.Dependencies.Platforms["debian"].Versions)

	assert.Equal(t, before, dump(t, in), "input must not be modified")
	assert.NotContains(t, dump(t, out), "$ref")
}

func TestResolveCopiesByValue(t *testing.T) {
	out, err := Resolve(parse(t, shared))
	require.NoError(t, err)

	ubuntu := lookupPath(t, out, "dependencies", "platforms", "ubuntu", "apt")
	debian := lookupPath(t, out, "dependencies", "platforms", "debian", "apt")
	ubuntu.Content[0].Value = "changed"
	assert.Equal(t, "redis-server", debian.Content[0].Value)
}

func TestResolveIsIdempotent(t *testing.T) {
	once, err := Resolve(parse(t, shared))
	require.NoError(t, err)
	twice, err := Resolve(once)
	require.NoError(t, err)
	assert.Equal(t, dump(t, once), dump(t, twice))
}

func TestResolveCycles(t *testing.T) {
	cases := map[string]string{
		"self": `a: {$ref: "#/a"}`,
		"pair": `
a: {$ref: "#/b"}
b: {$ref: "#/a"}`,
		"ancestor": `
a:
  b:
    $ref: "#/a"`,
		"through path": `
a: {$ref: "#/a/x"}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := Resolve(parse(t, src))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, fault.ErrCyclicReference)
		})
	}
}

func TestResolveDepthBound(t *testing.T) {
	src := `
a: {$ref: "#/b"}
b: {$ref: "#/c"}
c: {$ref: "#/d"}
d: done`
	r := &Resolver{MaxDepth: 2}
	_, err := r.Resolve(parse(t, src))
	assert.ErrorIs(t, err, fault.ErrCyclicReference)

	out, err := (&Resolver{MaxDepth: 3}).Resolve(parse(t, src))
	require.NoError(t, err)
	assert.Equal(t, "done", lookupPath(t, out, "a").Value)
}

func TestResolveUnresolved(t *testing.T) {
	for _, src := range []string{
		`a: {$ref: "#/missing"}`,
		`a: {$ref: "#/list/5"}
list: [x]`,
		`a: {$ref: "other.yml#/x"}`,
	} {
		_, err := Resolve(parse(t, src))
		assert.ErrorIs(t, err, fault.ErrUnresolvedReference, src)
		assert.Equal(t, "UnresolvedReferenceError", fault.KindOf(err))
	}
}

func TestPointerEscapes(t *testing.T) {
	src := `
"a/b": {"m~n": 7}
x: {$ref: "#/a~1b/m~0n"}
y: {$ref: "#/seq/1"}
seq: [zero, one]`
	out, err := Resolve(parse(t, src))
	require.NoError(t, err)
	assert.Equal(t, "7", lookupPath(t, out, "x").Value)
	assert.Equal(t, "one", lookupPath(t, out, "y").Value)
}

func lookupPath(t *testing.T, n *yaml.Node, keys ...string) *yaml.Node {
	t.Helper()
	if n.Kind == yaml.DocumentNode {
		n = n.Content[0]
	}
	for _, k := range keys {
		n = child(n, k)
		require.NotNil(t, n, k)
	}
	return n
}
