package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/ocifetch"
)

// Transport opens the byte stream behind an artifact URI.
type Transport interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, uri string) (io.ReadCloser, error)

func (f TransportFunc) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return f(ctx, uri)
}

// HTTP downloads http and https URIs, retrying transient failures.
type HTTP struct {
	client *retryablehttp.Client
}

func NewHTTP(retries int, timeout time.Duration, logger *zap.Logger) *HTTP {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = leveled{logger.Sugar()}
	return &HTTP{client: c}
}

func (h *HTTP) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", uri, resp.Status)
	}
	return resp.Body, nil
}

// leveled routes retryablehttp's log lines through zap.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// File opens file:// URIs and plain paths. Relative paths resolve against
// Dir.
type File struct {
	Dir string
}

func (f File) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	p := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, err
		}
		p = u.Path
	}
	if !filepath.IsAbs(p) && f.Dir != "" {
		p = filepath.Join(f.Dir, p)
	}
	return os.Open(p)
}

// Mux picks a transport by URI scheme.
type Mux struct {
	HTTP Transport
	File Transport
	OCI  Transport
}

// NewMux wires the default transports.
func NewMux(h *HTTP, dir string, oci *ocifetch.Fetcher) *Mux {
	m := &Mux{HTTP: h, File: File{Dir: dir}}
	if oci != nil {
		m.OCI = oci
	}
	return m
}

func (m *Mux) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	var t Transport
	switch scheme(uri) {
	case "http", "https":
		t = m.HTTP
	case "oci":
		t = m.OCI
	case "file", "":
		t = m.File
	default:
		return nil, fmt.Errorf("unsupported scheme in %q", uri)
	}
	if t == nil {
		return nil, fmt.Errorf("no transport for %q", uri)
	}
	return t.Open(ctx, uri)
}

func scheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(uri[:i])
}
