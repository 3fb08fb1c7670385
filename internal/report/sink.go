package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Sink receives the final report of a run.
type Sink interface {
	Send(ctx context.Context, r *Report) error
}

// Multi sends to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, r *Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per step and a summary.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(_ context.Context, r *Report) error {
	for _, s := range r.Steps {
		fields := []zap.Field{
			zap.String("step", s.ID),
			zap.String("kind", s.Kind),
			zap.String("state", string(s.State)),
		}
		if s.Reason != "" {
			fields = append(fields, zap.String("reason", s.Reason))
		}
		if s.Cancelled {
			fields = append(fields, zap.Bool("cancelled", true))
		}
		for i, a := range s.Attempts {
			fields = append(fields, zap.String(fmt.Sprintf("attempt.%d", i), a.Strategy+":"+a.Outcome))
		}
		if s.State == StateFailed {
			fields = append(fields, zap.String("error_kind", s.ErrorKind), zap.String("error", s.Error))
			l.Logger.Warn("step failed", fields...)
			continue
		}
		l.Logger.Info("step", fields...)
	}
	l.Logger.Info("run finished",
		zap.String("run_id", r.RunID),
		zap.String("status", string(r.Status)),
		zap.Int("succeeded", r.Count(StateSucceeded)),
		zap.Int("failed", r.Count(StateFailed)),
		zap.Int("skipped", r.Count(StateSkipped)),
		zap.Int("pending", r.Count(StatePending)),
	)
	return nil
}

// Publisher sends a message on a subject.
type Publisher interface {
	Publish(subject string, msg interface{}) error
}

// NATS publishes the report on Subject.
type NATS struct {
	Publisher Publisher
	Subject   string
}

func (n NATS) Send(_ context.Context, r *Report) error {
	if err := n.Publisher.Publish(n.Subject, r); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Webhook POSTs the report as JSON, retrying connection errors and 5xx
// responses.
type Webhook struct {
	URL    string
	Client *retryablehttp.Client
}

func NewWebhook(url string) *Webhook {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil
	return &Webhook{URL: url, Client: c}
}

func (w *Webhook) Send(ctx context.Context, r *Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post report: %s", resp.Status)
	}
	return nil
}
