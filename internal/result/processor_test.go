package result

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"testing"

	"github.com/dwhagent/agent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeUploader struct {
	written   map[string][]byte
	presigned string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{written: make(map[string][]byte), presigned: "https://example.test/signed"}
}

func (f *fakeUploader) Write(key string, data []byte) error {
	f.written[key] = data
	return nil
}

func (f *fakeUploader) GeneratePresignedURL(key string, expirationSeconds int) (string, error) {
	return f.presigned, nil
}

func TestProcessor_SmallResultPassesThrough(t *testing.T) {
	u := newFakeUploader()
	p := New(u, 0, testLogger())

	attrs := model.NewOperationAttributes("op1", "t1", false, 100000, "")
	env := model.NewResultEnvelope(map[string]any{"rowcount": 3})

	out, err := p.Process(env, attrs)
	require.NoError(t, err)
	assert.Equal(t, env, out)
	assert.Empty(t, u.written)
}

func TestProcessor_LargeResultSpillsAndSubstitutesURL(t *testing.T) {
	u := newFakeUploader()
	p := New(u, 0, testLogger())

	attrs := model.NewOperationAttributes("op1", "t1", true, 1, "")
	env := model.NewResultEnvelope(map[string]any{"big": true})

	out, err := p.Process(env, attrs)
	require.NoError(t, err)

	assert.NotContains(t, out, model.AttrResult)
	assert.Equal(t, "https://example.test/signed", out[model.AttrResultLocation])
	assert.Equal(t, true, out[model.AttrResultCompressed])

	written, ok := u.written["responses/t1"]
	require.True(t, ok)

	gr, err := gzip.NewReader(bytes.NewReader(written))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Contains(t, string(decompressed), "big")
}

func TestProcessor_LargeResultUncompressedWhenFlagFalse(t *testing.T) {
	u := newFakeUploader()
	p := New(u, 0, testLogger())

	attrs := model.NewOperationAttributes("op1", "t2", false, 1, "")
	env := model.NewResultEnvelope(map[string]any{"big": true})

	out, err := p.Process(env, attrs)
	require.NoError(t, err)
	assert.Equal(t, false, out[model.AttrResultCompressed])

	written := u.written["responses/t2"]
	assert.Contains(t, string(written), "big")
}

func TestProcessor_ZeroLimitNeverSpills(t *testing.T) {
	u := newFakeUploader()
	p := New(u, 0, testLogger())

	attrs := model.NewOperationAttributes("op1", "t3", false, 0, "")
	attrs.ResponseSizeLimitBytes = 0 // explicitly disable gating
	env := model.NewResultEnvelope(map[string]any{"big": true})

	out, err := p.Process(env, attrs)
	require.NoError(t, err)
	assert.Equal(t, env, out)
}

func TestProcessor_ErrorEnvelopePassesThroughUnmodified(t *testing.T) {
	u := newFakeUploader()
	p := New(u, 0, testLogger())

	attrs := model.NewOperationAttributes("op1", "t4", false, 1, "")
	env := model.NewErrorEnvelope(model.ErrorTypeProgramming, "boom", 630, "57014")

	out, err := p.Process(env, attrs)
	require.NoError(t, err)
	assert.Equal(t, env, out)
}
