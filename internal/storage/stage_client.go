package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/dwhagent/agent/internal/warehouse"
)

// gzipMagic is the two-byte signature that flags gzip-compressed content.
var gzipMagic = []byte{0x1f, 0x8b}

// notFoundErrorCode is the warehouse's "stage file not found" error code.
const notFoundErrorCode = 253006

// StageClient is the production BlobClient: a warehouse-internal stage
// used as blob storage, operated through a transient local temp file for
// both PUT and GET (the warehouse driver's PUT/GET commands are
// filesystem-path based, not stream based).
type StageClient struct {
	pool        *warehouse.Pool
	stageName   string
	local       bool
	helperProc  string
	presignProc string
	tempDir     string
	logger      *slog.Logger
}

// NewStageClient builds a StageClient against stageName using pool for
// connections. local selects whether GeneratePresignedURL calls the
// warehouse directly (dev) or wraps the call in a helper stored procedure
// (platform) — the direct call returns a non-usable URL inside the
// container.
func NewStageClient(pool *warehouse.Pool, stageName string, local bool, logger *slog.Logger) *StageClient {
	return &StageClient{
		pool:        pool,
		stageName:   stageName,
		local:       local,
		helperProc:  "GET_PRESIGNED_URL_HELPER",
		presignProc: "GET_PRESIGNED_URL",
		tempDir:     os.TempDir(),
		logger:      logger,
	}
}

// normalizeKey applies Unicode NFC normalization to a stage key. Stage
// PUT/GET/REMOVE commands are filesystem-path based, so two byte-different
// but canonically-equivalent encodings of the same key (composed vs.
// decomposed accents, for instance) must resolve to the same stage object.
func normalizeKey(key string) string {
	return norm.NFC.String(key)
}

// Write uploads data to key via a transient local temp file + PUT, deleting
// the temp file on every exit path.
func (s *StageClient) Write(key string, data []byte) error {
	key = normalizeKey(key)
	ctx := context.Background()

	tmpFile, err := os.CreateTemp(s.tempDir, "agent-stage-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("storage: closing temp file: %w", err)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stmt := fmt.Sprintf("PUT file://%s @%s/%s OVERWRITE=TRUE", tmpPath, s.stageName, key)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return translateError(err)
	}
	return nil
}

// Read downloads key to a temp directory via GET, optionally inflating a
// gzip-magic-prefixed payload, and optionally decoding the result to a
// string using encoding.
func (s *StageClient) Read(key string, decompress bool, encoding string) (any, error) {
	key = normalizeKey(key)
	ctx := context.Background()

	dir, err := os.MkdirTemp(s.tempDir, "agent-stage-get-*")
	if err != nil {
		return nil, fmt.Errorf("storage: creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("GET @%s/%s file://%s/", s.stageName, key, dir)
	_, err = conn.ExecContext(ctx, stmt)
	conn.Close()
	if err != nil {
		return nil, translateError(err)
	}

	localPath := filepath.Join(dir, filepath.Base(key))
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("storage: reading downloaded file: %w", err)
	}

	if decompress && bytes.HasPrefix(data, gzipMagic) {
		inflated, err := gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("storage: inflating gzip payload: %w", err)
		}
		data = inflated
	}

	if encoding != "" {
		return string(data), nil
	}
	return data, nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Delete issues a REMOVE for key.
func (s *StageClient) Delete(key string) error {
	key = normalizeKey(key)
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stmt := fmt.Sprintf("REMOVE @%s/%s", s.stageName, key)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return translateError(err)
	}
	return nil
}

// GeneratePresignedURL returns the first cell of the first row of a
// GET_PRESIGNED_URL call, wrapped in a helper stored procedure when running
// inside the platform (local == false).
func (s *StageClient) GeneratePresignedURL(key string, expirationSeconds int) (string, error) {
	key = normalizeKey(key)
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	var row *sql.Rows
	if s.local {
		row, err = conn.QueryContext(ctx,
			fmt.Sprintf("SELECT %s(@%s, ?, ?)", s.presignProc, s.stageName), key, expirationSeconds)
	} else {
		row, err = conn.QueryContext(ctx,
			fmt.Sprintf("CALL %s(?, ?, ?)", s.helperProc), s.stageName, key, expirationSeconds)
	}
	if err != nil {
		return "", translateError(err)
	}
	defer row.Close()

	if !row.Next() {
		return "", fmt.Errorf("storage: GeneratePresignedURL returned no rows for %s", key)
	}

	var url string
	if err := row.Scan(&url); err != nil {
		return "", fmt.Errorf("storage: scanning presigned URL: %w", err)
	}
	return url, nil
}

// IsBucketPrivate is always true: warehouse stages are never publicly
// reachable.
func (s *StageClient) IsBucketPrivate() bool { return true }

// ReadManyJSON, ListObjects, and ManagedDownload are declared on BlobClient
// but intentionally not implemented in this core.
func (s *StageClient) ReadManyJSON([]string) (map[string]any, error) { return nil, ErrNotImplemented }
func (s *StageClient) ListObjects(string) ([]string, error)          { return nil, ErrNotImplemented }
func (s *StageClient) ManagedDownload(string, string) error          { return ErrNotImplemented }

// translateError maps a warehouse "stage file not found" failure to
// ErrNotFound; everything else passes through as ErrGeneric.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var we *warehouse.ErrQueryFailed
	if errors.As(err, &we) && we.Code == notFoundErrorCode {
		return ErrNotFound
	}
	return &ErrGeneric{Err: err}
}
