package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaji-balu/offsetup/internal/fault"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		expr, candidate string
		want            bool
	}{
		{">16.04", "16.04.2", true},
		{">16.04", "16.04", false},
		{">16.04", "16.4.0", false},
		{">=7600", "10000", true},
		{">=7600", "7600", true},
		{">=7600", "7599", false},
		{"10.0", "10", true},
		{"10.0.1", "10", false},
		{"=18.04", "18.4", true},
		{">1.9", "1.10", true},
		{"<2", "1.99.99", true},
		{"<=2", "2.0.0.0", true},
		{">=1.2, <2", "1.9", true},
		{">=1.2, <2", "2.0", false},
		{">=1.2, <2", "1.1", false},
	}
	for _, tc := range cases {
		t.Run(tc.expr+"/"+tc.candidate, func(t *testing.T) {
			got, err := Matches(tc.expr, tc.candidate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAtLeastIsReflexive(t *testing.T) {
	for _, v := range []string{"0", "1", "16.04", "16.04.2", "10000", "1.2.3.4.5"} {
		ok, err := Matches(">="+v, v)
		require.NoError(t, err)
		assert.True(t, ok, v)
	}
}

func TestInvalidVersion(t *testing.T) {
	for _, bad := range []string{"", "abc", "1..2", "v1.2", "1.2-beta", ">=", "1.2,"} {
		t.Run(bad, func(t *testing.T) {
			_, err := Matches(bad, "1.0")
			require.Error(t, err)
			assert.True(t, errors.Is(err, fault.ErrInvalidVersion))
			assert.Equal(t, "InvalidVersionError", fault.KindOf(err))
		})
	}

	_, err := Matches(">=1.0", "ten")
	assert.ErrorIs(t, err, fault.ErrInvalidVersion)
}

func TestConstraintString(t *testing.T) {
	c, err := ParseConstraint(">= 1.2 , <2")
	require.NoError(t, err)
	assert.Equal(t, ">=1.2, <2", c.String())
}
