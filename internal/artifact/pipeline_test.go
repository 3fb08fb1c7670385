package artifact

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
)

func sum(b []byte) string {
	s := sha512.Sum512(b)
	return hex.EncodeToString(s[:])
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zipped(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// serve returns a server for body and a counter of requests it answered.
func serve(t *testing.T, body []byte) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func countingSum(n *atomic.Int32) Checksum {
	return func(r io.Reader) (string, error) {
		n.Add(1)
		return SHA512(r)
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	body := tarGz(t, map[string]string{"bin/tool": "#!/bin/sh\n"})
	srv, hits := serve(t, body)
	var checks atomic.Int32
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), countingSum(&checks), zap.NewNop())

	step := plan.DownloadExtract{
		URI:       srv.URL + "/tool.tar.gz",
		SHA512:    strings.ToUpper(sum(body)),
		Extract:   true,
		TargetDir: t.TempDir(),
	}
	ctx := context.Background()

	first, err := p.Fetch(ctx, step)
	require.NoError(t, err)
	assert.True(t, first.Downloaded)
	assert.True(t, first.Verified)
	assert.True(t, first.Extracted)
	assert.Equal(t, int64(len(body)), first.Bytes)
	assert.FileExists(t, filepath.Join(step.TargetDir, "bin", "tool"))

	second, err := p.Fetch(ctx, step)
	require.NoError(t, err)
	assert.False(t, second.Downloaded)
	assert.True(t, second.Verified)

	assert.Equal(t, int32(1), hits.Load(), "downloads")
	assert.Equal(t, int32(2), checks.Load(), "verifications")
}

func TestFetchChecksumMismatchLeavesNothing(t *testing.T) {
	srv, _ := serve(t, []byte("tampered"))
	dir := t.TempDir()
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), nil, zap.NewNop())

	_, err := p.Fetch(context.Background(), plan.DownloadExtract{
		URI:       srv.URL + "/a.zip",
		SHA512:    sum([]byte("original")),
		TargetDir: dir,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrChecksumMismatch)
	assert.Equal(t, "ChecksumMismatchError", fault.KindOf(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchReplacesStaleFile(t *testing.T) {
	body := []byte("fresh")
	srv, hits := serve(t, body)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.bin"), []byte("old"), 0o644))
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), nil, zap.NewNop())

	res, err := p.Fetch(context.Background(), plan.DownloadExtract{URI: srv.URL + "/tool.bin", SHA512: sum(body), TargetDir: dir})
	require.NoError(t, err)
	assert.True(t, res.Downloaded)
	assert.Equal(t, int32(1), hits.Load())
	got, _ := os.ReadFile(res.Path)
	assert.Equal(t, body, got)
}

func TestFetchMismatchRemovesStaleFile(t *testing.T) {
	srv, _ := serve(t, []byte("tampered"))
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(dest, []byte("old stale bytes"), 0o644))
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), nil, zap.NewNop())

	_, err := p.Fetch(context.Background(), plan.DownloadExtract{URI: srv.URL + "/app.bin", SHA512: sum([]byte("genuine")), TargetDir: dir})
	require.ErrorIs(t, err, fault.ErrChecksumMismatch)
	assert.NoFileExists(t, dest)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchZipFromFile(t *testing.T) {
	body := zipped(t, map[string]string{"redis/redis-server.exe": "MZ", "README": "hi"})
	src := filepath.Join(t.TempDir(), "redis.zip")
	require.NoError(t, os.WriteFile(src, body, 0o644))

	dir := t.TempDir()
	p := New(File{}, nil, zap.NewNop())
	res, err := p.Fetch(context.Background(), plan.DownloadExtract{URI: "file://" + src, SHA512: sum(body), Extract: true, TargetDir: dir})
	require.NoError(t, err)
	assert.True(t, res.Extracted)
	assert.FileExists(t, filepath.Join(dir, "redis", "redis-server.exe"))
	assert.FileExists(t, filepath.Join(dir, "README"))
}

func TestFetchUnsupportedArchive(t *testing.T) {
	body := []byte("just some text, not an archive")
	srv, _ := serve(t, body)
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), nil, zap.NewNop())

	_, err := p.Fetch(context.Background(), plan.DownloadExtract{URI: srv.URL + "/notes.txt", SHA512: sum(body), Extract: true, TargetDir: t.TempDir()})
	assert.ErrorIs(t, err, fault.ErrUnsupportedArchive)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	p := New(NewHTTP(0, 5*time.Second, zap.NewNop()), nil, zap.NewNop())

	_, err := p.Fetch(context.Background(), plan.DownloadExtract{URI: srv.URL + "/missing", TargetDir: t.TempDir()})
	assert.ErrorIs(t, err, fault.ErrDownloadTransport)
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(TransportFunc(func(context.Context, string) (io.ReadCloser, error) {
		cancel()
		return io.NopCloser(strings.NewReader("data")), nil
	}), nil, zap.NewNop())

	_, err := p.Fetch(ctx, plan.DownloadExtract{URI: "https://example.com/x", TargetDir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractRejectsEscapes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "evil.tar.gz")
	require.NoError(t, os.WriteFile(src, tarGz(t, map[string]string{"../evil": "x"}), 0o644))
	parent := t.TempDir()
	err := Extract(context.Background(), src, filepath.Join(parent, "out"))
	if err != nil {
		assert.ErrorIs(t, err, fault.ErrUnsupportedArchive)
	}
	assert.NoFileExists(t, filepath.Join(parent, "evil"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "redis.zip", FileName("https://example.com/dl/redis.zip?x=1"))
	assert.Equal(t, "tool_1.2", FileName("oci://ghcr.io/acme/tool:1.2"))
	assert.Equal(t, "a.msi", FileName(`C:\cache\a.msi`))
	assert.Equal(t, "artifact", FileName("https://example.com/"))
}

func TestMuxSchemes(t *testing.T) {
	var got []string
	rec := func(name string) Transport {
		return TransportFunc(func(_ context.Context, uri string) (io.ReadCloser, error) {
			got = append(got, name)
			return io.NopCloser(strings.NewReader("")), nil
		})
	}
	m := &Mux{HTTP: rec("http"), File: rec("file"), OCI: rec("oci")}
	for _, uri := range []string{"https://a/b", "HTTP://a/b", "oci://r/x:1", "file:///tmp/a", "rel/path"} {
		_, err := m.Open(context.Background(), uri)
		require.NoError(t, err, uri)
	}
	assert.Equal(t, []string{"http", "http", "oci", "file", "file"}, got)

	_, err := m.Open(context.Background(), "ftp://a/b")
	assert.Error(t, err)
}
