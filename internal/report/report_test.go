package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sample() *Report {
	return &Report{
		RunID:    "run-1",
		Manifest: "web",
		Platform: "ubuntu",
		Status:   StatusFailed,
		Steps: []StepResult{
			{ID: "pkg/apt/redis", Kind: "PackageManagerInstall", State: StateSucceeded},
			{ID: "app/redis/install", Kind: "ApplicationInstall", State: StateSucceeded, Attempts: []Attempt{
				{Strategy: "docker", Outcome: OutcomeUnavailable, Error: "docker missing"},
				{Strategy: "native", Outcome: OutcomeSucceeded},
			}},
			{ID: "app/pg/install", Kind: "ApplicationInstall", State: StateFailed, FailSilently: true, ErrorKind: "PackageManagerError"},
			{ID: "port/tcp/80", Kind: "PortExpose", State: StatePending},
		},
	}
}

func TestReportOutcome(t *testing.T) {
	r := sample()
	assert.False(t, r.Failed(), "silenced failures do not fail the run")
	assert.Equal(t, 0, r.ExitCode())
	assert.Equal(t, 2, r.Count(StateSucceeded))

	r.Steps[3].State = StateFailed
	assert.True(t, r.Failed())
	assert.Equal(t, 1, r.ExitCode())

	_, ok := r.Step("app/redis/install")
	assert.True(t, ok)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, Log{Logger: zap.New(core)}.Send(context.Background(), sample()))

	assert.Equal(t, 1, logs.FilterMessage("step failed").Len())
	summary := logs.FilterMessage("run finished").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].ContextMap()["succeeded"])
	assert.Equal(t, 1, logs.FilterField(zap.String("attempt.0", "docker:unavailable")).Len())
}

type fakePublisher struct {
	subject string
	msg     interface{}
}

func (f *fakePublisher) Publish(subject string, msg interface{}) error {
	f.subject, f.msg = subject, msg
	return nil
}

func TestNATSSink(t *testing.T) {
	p := &fakePublisher{}
	r := sample()
	require.NoError(t, NATS{Publisher: p, Subject: "offsetup.reports"}.Send(context.Background(), r))
	assert.Equal(t, "offsetup.reports", p.subject)
	assert.Same(t, r, p.msg)
}

func TestWebhookSink(t *testing.T) {
	var got Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL).Send(context.Background(), sample()))
	assert.Equal(t, "run-1", got.RunID)
	assert.Len(t, got.Steps, 4)
	assert.Equal(t, OutcomeUnavailable, got.Steps[1].Attempts[0].Outcome)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	assert.Error(t, NewWebhook(bad.URL).Send(context.Background(), sample()))
}

type failing struct{}

func (failing) Send(context.Context, *Report) error { return errors.New("down") }

func TestMultiJoinsErrors(t *testing.T) {
	p := &fakePublisher{}
	err := Multi{failing{}, NATS{Publisher: p, Subject: "s"}}.Send(context.Background(), sample())
	assert.EqualError(t, err, "down")
	assert.NotNil(t, p.msg, "later sinks still run")
}
