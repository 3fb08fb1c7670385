package gitfetcher

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRepo(t *testing.T) {
	for locator, want := range map[string]bool{
		"https://github.com/acme/tool": true,
		"git@github.com:acme/tool.git": true,
		"ssh://git@example.com/x":      true,
		"../vendor/tool.git":           true,
		"redis-server":                 false,
		"acme/tool":                    false,
	} {
		assert.Equal(t, want, IsRepo(locator), locator)
	}
}

func TestAuth(t *testing.T) {
	assert.Nil(t, (&GitFetcher{}).auth())

	a := (&GitFetcher{Token: "s3cret"}).auth()
	basic, ok := a.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "s3cret", basic.Password)
	assert.NotEmpty(t, basic.Username)
}
