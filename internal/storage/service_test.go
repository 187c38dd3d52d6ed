package storage

import (
	"testing"

	"github.com/dwhagent/agent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobClient struct {
	writeErr  error
	readVal   any
	readErr   error
	deleteErr error
	presigned string
	presignErr error
	private   bool

	lastWriteKey string
	lastWriteVal []byte
}

func (f *fakeBlobClient) Write(key string, data []byte) error {
	f.lastWriteKey, f.lastWriteVal = key, data
	return f.writeErr
}
func (f *fakeBlobClient) Read(key string, decompress bool, encoding string) (any, error) {
	return f.readVal, f.readErr
}
func (f *fakeBlobClient) Delete(key string) error { return f.deleteErr }
func (f *fakeBlobClient) GeneratePresignedURL(key string, expirationSeconds int) (string, error) {
	return f.presigned, f.presignErr
}
func (f *fakeBlobClient) IsBucketPrivate() bool { return f.private }
func (f *fakeBlobClient) ReadManyJSON([]string) (map[string]any, error) { return nil, ErrNotImplemented }
func (f *fakeBlobClient) ListObjects(string) ([]string, error)          { return nil, ErrNotImplemented }
func (f *fakeBlobClient) ManagedDownload(string, string) error          { return ErrNotImplemented }

func TestService_InvalidOperationType(t *testing.T) {
	s := New(&fakeBlobClient{})
	env := s.ExecuteOperation(map[string]any{"type": "storage_bogus", "key": "k"})
	assert.Equal(t, "Invalid operation type: storage_bogus", env[model.AttrError])
}

func TestService_MissingKeyIsError(t *testing.T) {
	s := New(&fakeBlobClient{})
	env := s.ExecuteOperation(map[string]any{"type": OpRead})
	require.Contains(t, env, model.AttrError)
}

func TestService_Write(t *testing.T) {
	fc := &fakeBlobClient{}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpWrite, "key": "k1", "value": "hello"})

	require.NotContains(t, env, model.AttrError)
	assert.Equal(t, "k1", fc.lastWriteKey)
	assert.Equal(t, []byte("hello"), fc.lastWriteVal)
}

func TestService_Read(t *testing.T) {
	fc := &fakeBlobClient{readVal: "contents"}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpRead, "key": "k1"})
	assert.Equal(t, "contents", env[model.AttrResult])
}

func TestService_ReadNotFound(t *testing.T) {
	fc := &fakeBlobClient{readErr: ErrNotFound}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpRead, "key": "k1"})
	require.Contains(t, env, model.AttrError)
}

func TestService_GeneratePresignedURL(t *testing.T) {
	fc := &fakeBlobClient{presigned: "https://example.test/x"}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpGeneratePresignedURL, "key": "k1"})
	assert.Equal(t, "https://example.test/x", env[model.AttrResult].(map[string]any)["url"])
}

func TestService_IsBucketPrivate(t *testing.T) {
	fc := &fakeBlobClient{private: true}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpIsBucketPrivate, "key": "k1"})
	assert.Equal(t, true, env[model.AttrResult].(map[string]any)["is_private"])
}

func TestService_Delete(t *testing.T) {
	fc := &fakeBlobClient{}
	s := New(fc)
	env := s.ExecuteOperation(map[string]any{"type": OpDelete, "key": "k1"})
	require.NotContains(t, env, model.AttrError)
}
