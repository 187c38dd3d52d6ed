package storage

import (
	"bytes"
	"compress/gzip"
	"errors"
	"testing"

	"github.com/dwhagent/agent/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGunzip_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	out, err := gunzip(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestGzipMagicDetection(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write([]byte("x"))
	_ = gw.Close()

	assert.True(t, bytes.HasPrefix(buf.Bytes(), gzipMagic))
	assert.False(t, bytes.HasPrefix([]byte("plain text"), gzipMagic))
}

func TestTranslateError_NotFoundCode(t *testing.T) {
	qf := warehouse.NewErrQueryFailed(notFoundErrorCode, "file not found", "")
	err := translateError(qf)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranslateError_OtherCodeIsGeneric(t *testing.T) {
	qf := warehouse.NewErrQueryFailed(1, "something else", "")
	err := translateError(qf)
	var generic *ErrGeneric
	assert.True(t, errors.As(err, &generic))
}

func TestTranslateError_Nil(t *testing.T) {
	assert.NoError(t, translateError(nil))
}

func TestNormalizeKey_ComposesDecomposedAccents(t *testing.T) {
	decomposed := "cafe\u0301.json" // "e" + combining acute accent (NFD)
	composed := "caf\u00e9.json"    // precomposed "e with acute" (NFC)
	assert.Equal(t, composed, normalizeKey(decomposed))
	assert.Equal(t, normalizeKey(composed), normalizeKey(decomposed))
}

func TestNormalizeKey_PlainASCIIUnchanged(t *testing.T) {
	assert.Equal(t, "reports/q1.csv", normalizeKey("reports/q1.csv"))
}
