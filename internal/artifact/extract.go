package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// Extract unpacks the archive at name into dir. The format is detected
// from the file name and its leading bytes.
func Extract(ctx context.Context, name, dir string) error {
	f, err := os.Open(name)
	if err != nil {
		return fault.Wrap(fault.ErrUnsupportedArchive, err, "%s", name)
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, filepath.Base(name), f)
	if errors.Is(err, archives.NoMatch) {
		return fault.New(fault.ErrUnsupportedArchive, "%s", filepath.Base(name))
	}
	if err != nil {
		return fault.Wrap(fault.ErrUnsupportedArchive, err, "%s", name)
	}
	ex, ok := format.(archives.Extractor)
	if !ok {
		return fault.New(fault.ErrUnsupportedArchive, "%s is %s, not an archive", filepath.Base(name), format.Extension())
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	err = ex.Extract(ctx, stream, func(ctx context.Context, info archives.FileInfo) error {
		return writeEntry(root, info)
	})
	if err != nil {
		if errors.Is(err, fault.ErrUnsupportedArchive) {
			return err
		}
		return fault.Wrap(fault.ErrUnsupportedArchive, err, "extract %s", filepath.Base(name))
	}
	return nil
}

func writeEntry(root string, info archives.FileInfo) error {
	target, err := within(root, info.NameInArchive)
	if err != nil {
		return err
	}
	switch {
	case info.IsDir():
		return os.MkdirAll(target, 0o755)
	case info.LinkTarget != "":
		if filepath.IsAbs(info.LinkTarget) {
			return fault.New(fault.ErrUnsupportedArchive, "link %q points outside %s", info.NameInArchive, root)
		}
		rel, err := filepath.Rel(root, filepath.Join(filepath.Dir(target), info.LinkTarget))
		if err != nil || strings.HasPrefix(rel, "..") {
			return fault.New(fault.ErrUnsupportedArchive, "link %q points outside %s", info.NameInArchive, root)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(info.LinkTarget, target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := info.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// within joins name onto root and refuses paths that escape it.
func within(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fault.New(fault.ErrUnsupportedArchive, "entry %q escapes %s", name, root)
	}
	return target, nil
}
