package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaji-balu/offsetup/internal/report"
)

func TestSaveAndLatest(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC()
	first := &report.Report{RunID: "a", Status: report.StatusFailed, StartedAt: now.Add(-time.Minute)}
	second := &report.Report{RunID: "b", Status: report.StatusSuccess, StartedAt: now, Steps: []report.StepResult{
		{ID: "pkg/apt/redis", State: report.StateSucceeded},
	}}
	require.NoError(t, s.Save(first))
	require.NoError(t, s.Send(context.Background(), second))

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "b", latest.RunID)
	assert.Equal(t, report.StateSucceeded, latest.Steps[0].State)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, got.Status)

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RunID)

	_, err = s.Get("zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}
