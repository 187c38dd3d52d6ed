// Package storage implements a typed operation dispatcher over a
// stage-backed blob store: temp-file staging around a remote PUT/GET, with
// guaranteed cleanup on every exit path.
package storage

import (
	"errors"
	"fmt"

	"github.com/dwhagent/agent/internal/model"
)

// Operation type strings recognized by ExecuteOperation.
const (
	OpRead                 = "storage_read"
	OpReadJSON             = "storage_read_json"
	OpWrite                = "storage_write"
	OpDelete               = "storage_delete"
	OpGeneratePresignedURL = "storage_generate_presigned_url"
	OpIsBucketPrivate      = "storage_is_bucket_private"
)

// ErrNotImplemented is returned by BlobClient methods that are
// intentionally unimplemented: ReadManyJSON, ListObjects, ManagedDownload.
var ErrNotImplemented = errors.New("storage: not implemented")

// ErrNotFound is returned when a key doesn't exist in the backing store
// (warehouse error code 253006 translates to this).
var ErrNotFound = errors.New("storage: not found")

// ErrGeneric wraps any other backing-store failure.
type ErrGeneric struct{ Err error }

func (e *ErrGeneric) Error() string { return "storage: " + e.Err.Error() }
func (e *ErrGeneric) Unwrap() error { return e.Err }

// BlobClient is the storage backend contract. One production
// implementation (StageClient); tests inject alternates.
type BlobClient interface {
	Write(key string, data []byte) error
	Read(key string, decompress bool, encoding string) (any, error)
	Delete(key string) error
	GeneratePresignedURL(key string, expirationSeconds int) (string, error)
	IsBucketPrivate() bool
	ReadManyJSON(keys []string) (map[string]any, error)
	ListObjects(prefix string) ([]string, error)
	ManagedDownload(key, destPath string) error
}

// Service dispatches typed storage operations to a BlobClient.
type Service struct {
	client BlobClient
}

// New builds a Service over client.
func New(client BlobClient) *Service {
	return &Service{client: client}
}

// ExecuteOperation is the single entry point: it inspects event's "type"
// field and dispatches to the matching BlobClient method, returning a
// result envelope either way.
func (s *Service) ExecuteOperation(event map[string]any) model.Envelope {
	opType, _ := event["type"].(string)
	key, hasKey := event["key"].(string)
	if !hasKey || key == "" {
		return errorEnvelope(fmt.Errorf("storage: operation %q missing required \"key\"", opType), key)
	}

	switch opType {
	case OpRead:
		decompress, _ := event["decompress"].(bool)
		encoding, _ := event["encoding"].(string)
		data, err := s.client.Read(key, decompress, encoding)
		if err != nil {
			return errorEnvelope(err, key)
		}
		return model.NewResultEnvelope(data)

	case OpReadJSON:
		data, err := s.client.Read(key, true, "utf-8")
		if err != nil {
			return errorEnvelope(err, key)
		}
		return model.NewResultEnvelope(data)

	case OpWrite:
		payload, err := writePayload(event)
		if err != nil {
			return errorEnvelope(err, key)
		}
		if err := s.client.Write(key, payload); err != nil {
			return errorEnvelope(err, key)
		}
		return model.NewResultEnvelope(map[string]any{"written": true})

	case OpDelete:
		if err := s.client.Delete(key); err != nil {
			return errorEnvelope(err, key)
		}
		return model.NewResultEnvelope(map[string]any{"deleted": true})

	case OpGeneratePresignedURL:
		expiration := 3600
		if v, ok := event["expiration_seconds"].(float64); ok && v > 0 {
			expiration = int(v)
		}
		url, err := s.client.GeneratePresignedURL(key, expiration)
		if err != nil {
			return errorEnvelope(err, key)
		}
		return model.NewResultEnvelope(map[string]any{"url": url})

	case OpIsBucketPrivate:
		return model.NewResultEnvelope(map[string]any{"is_private": s.client.IsBucketPrivate()})

	default:
		return model.NewErrorEnvelope(model.ErrorTypeDatabase, fmt.Sprintf("Invalid operation type: %s", opType), 0, "")
	}
}

func writePayload(event map[string]any) ([]byte, error) {
	switch v := event["value"].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("storage: write operation missing string/bytes \"value\"")
	}
}

// errorEnvelope classifies err (NotFound vs Generic) into a result
// envelope. It does not log, and it treats keys under "idempotent/" the
// same as any other key; it only shapes the envelope.
func errorEnvelope(err error, key string) model.Envelope {
	if errors.Is(err, ErrNotFound) {
		return model.NewErrorEnvelope(model.ErrorTypeDatabase, "not found: "+key, 0, "")
	}
	return model.NewErrorEnvelope(model.ErrorTypeDatabase, err.Error(), 0, "")
}
