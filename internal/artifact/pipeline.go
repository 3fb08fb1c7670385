// Package artifact downloads, verifies and unpacks the files a platform
// asks for.
package artifact

import (
	"context"
	_ "crypto/sha512"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
)

const chunkSize = 32 << 10

// Checksum returns the lowercase hex digest of everything read from r.
type Checksum func(r io.Reader) (string, error)

// SHA512 is the default Checksum.
func SHA512(r io.Reader) (string, error) {
	d, err := digest.SHA512.FromReader(r)
	if err != nil {
		return "", err
	}
	return d.Encoded(), nil
}

type Result struct {
	// Path of the downloaded file.
	Path string
	// Downloaded is false when a verified copy was already present.
	Downloaded bool
	Verified   bool
	Extracted  bool
	Bytes      int64
}

type Pipeline struct {
	transport Transport
	checksum  Checksum
	logger    *zap.Logger
}

func New(t Transport, sum Checksum, logger *zap.Logger) *Pipeline {
	if sum == nil {
		sum = SHA512
	}
	return &Pipeline{transport: t, checksum: sum, logger: logger}
}

// Fetch makes step.TargetDir hold the artifact, verified against its
// checksum and unpacked when asked. Running it again with a verified file
// in place only re-checks the file.
func (p *Pipeline) Fetch(ctx context.Context, step plan.DownloadExtract) (*Result, error) {
	if err := os.MkdirAll(step.TargetDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.ErrDownloadTransport, err, "create %s", step.TargetDir)
	}
	dest := filepath.Join(step.TargetDir, FileName(step.URI))
	res := &Result{Path: dest}
	want := strings.ToLower(step.SHA512)

	present := false
	if want != "" {
		if ok, err := p.verify(dest, want); err == nil && ok {
			present = true
			res.Verified = true
			p.logger.Info("artifact already present", zap.String("uri", step.URI), zap.String("path", dest))
		} else if err == nil {
			p.logger.Warn("stale artifact, downloading again", zap.String("path", dest))
			if err := os.Remove(dest); err != nil {
				return nil, fault.Wrap(fault.ErrDownloadTransport, err, "remove stale %s", dest)
			}
		}
	}

	if !present {
		n, err := p.download(ctx, step.URI, dest, want)
		if errors.Is(err, fault.ErrChecksumMismatch) {
			_ = os.Remove(dest)
		}
		if err != nil {
			return nil, err
		}
		res.Downloaded = true
		res.Verified = want != ""
		res.Bytes = n
		p.logger.Info("artifact downloaded", zap.String("uri", step.URI), zap.Int64("bytes", n), zap.Bool("verified", res.Verified))
	}

	if step.Extract {
		if err := Extract(ctx, dest, step.TargetDir); err != nil {
			return nil, err
		}
		res.Extracted = true
	}
	return res, nil
}

// verify reports whether the file at name has the wanted digest. A missing
// file is not an error.
func (p *Pipeline) verify(name, want string) (bool, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err != nil {
		return false, nil
	}
	defer f.Close()
	got, err := p.checksum(f)
	if err != nil {
		return false, nil
	}
	return strings.EqualFold(got, want), nil
}

func (p *Pipeline) download(ctx context.Context, uri, dest, want string) (int64, error) {
	rc, err := p.transport.Open(ctx, uri)
	if err != nil {
		return 0, fault.Wrap(fault.ErrDownloadTransport, err, "%s", uri)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fault.Wrap(fault.ErrDownloadTransport, err, "%s", uri)
	}
	defer os.Remove(tmp.Name())

	n, err := copyContext(ctx, tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fault.Wrap(fault.ErrDownloadTransport, err, "%s", uri)
	}

	if want != "" {
		ok, err := p.verify(tmp.Name(), want)
		if err != nil || !ok {
			return n, fault.New(fault.ErrChecksumMismatch, "%s", uri)
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fault.Wrap(fault.ErrDownloadTransport, err, "%s", uri)
	}
	return n, nil
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// FileName is the local name an artifact is stored under.
func FileName(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
		if u.Scheme == "oci" {
			p = u.Host + u.Path
		}
	}
	p = strings.ReplaceAll(p, `\`, "/")
	name := path.Base(p)
	if strings.HasPrefix(uri, "oci://") {
		name = strings.ReplaceAll(name, ":", "_")
	}
	if name == "" || name == "." || name == "/" {
		return "artifact"
	}
	return name
}
