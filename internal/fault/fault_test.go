package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsKindAndCause(t *testing.T) {
	err := Wrap(ErrDownloadTransport, io.ErrUnexpectedEOF, "https://example.com/a.zip")

	assert.ErrorIs(t, err, ErrDownloadTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "download failed: https://example.com/a.zip: unexpected EOF", err.Error())
	assert.Equal(t, "DownloadTransportError", KindOf(err))

	outer := fmt.Errorf("step download/0: %w", err)
	assert.Equal(t, "DownloadTransportError", KindOf(outer))
	assert.Equal(t, "", KindOf(errors.New("plain")))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(New(ErrCapabilityUnavailable, "docker")))
	assert.True(t, Recoverable(New(ErrPackageManager, "apt exited 100")))
	assert.False(t, Recoverable(New(ErrChecksumMismatch, "a.zip")))
	assert.False(t, Recoverable(errors.New("boom")))
}
