package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The Name is what reports show.
type Kind struct {
	Name string
	text string
}

func (k *Kind) Error() string { return k.text }

func newKind(name, text string) *Kind { return &Kind{Name: name, text: text} }

var (
	// resolution
	ErrCyclicReference     = newKind("CyclicReferenceError", "cyclic reference")
	ErrUnresolvedReference = newKind("UnresolvedReferenceError", "unresolved reference")

	// validation and selection
	ErrManifestValidation  = newKind("ManifestValidationError", "invalid manifest")
	ErrInvalidVersion      = newKind("InvalidVersionError", "invalid version")
	ErrUnsupportedPlatform = newKind("UnsupportedPlatformError", "unsupported platform")
	ErrUnsupportedVersion  = newKind("UnsupportedVersionError", "unsupported platform version")
	ErrUnsupportedArch     = newKind("UnsupportedArchError", "unsupported architecture")

	// artifact pipeline
	ErrChecksumMismatch   = newKind("ChecksumMismatchError", "checksum mismatch")
	ErrUnsupportedArchive = newKind("UnsupportedArchiveError", "unsupported archive format")
	ErrDownloadTransport  = newKind("DownloadTransportError", "download failed")

	// execution
	ErrPackageManager        = newKind("PackageManagerError", "package manager failed")
	ErrCapabilityUnavailable = newKind("CapabilityUnavailableError", "capability unavailable")
	ErrProvisioning          = newKind("ProvisioningError", "provisioning failed")
	ErrCommand               = newKind("CommandError", "command failed")
)

// Error is a classified failure. It unwraps to both its Kind and the cause.
type Error struct {
	Kind *Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Msg != "" {
		s = fmt.Sprintf("%s: %s", s, e.Msg)
	}
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func New(kind *Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind *Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the name of the outermost Kind in err's chain, or "" if
// the error is unclassified.
func KindOf(err error) string {
	var k *Kind
	if errors.As(err, &k) {
		return k.Name
	}
	return ""
}

// Recoverable reports whether err is an expected install strategy failure:
// the tool is missing or the package manager refused. Other failures still
// move on to the next strategy but are logged as warnings.
func Recoverable(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable) || errors.Is(err, ErrPackageManager)
}
