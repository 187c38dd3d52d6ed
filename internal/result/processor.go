// Package result implements size-aware response handling that spills large
// payloads to object storage and substitutes a pre-signed URL, using
// internal/envcodec for deterministic serialization.
package result

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwhagent/agent/internal/envcodec"
	"github.com/dwhagent/agent/internal/model"
)

// DefaultPresignedURLExpiration matches the
// PRE_SIGNED_URL_RESPONSE_EXPIRATION_SECONDS config default (1 hour).
const DefaultPresignedURLExpiration = 1 * time.Hour

// Uploader is the subset of storage.BlobClient the processor needs —
// declared locally (accept interfaces, return structs) so this package
// doesn't import internal/storage just for two methods.
type Uploader interface {
	Write(key string, data []byte) error
	GeneratePresignedURL(key string, expirationSeconds int) (string, error)
}

// Processor applies the size-gate + spill-to-storage + presigned-URL
// substitution rule.
type Processor struct {
	storage             Uploader
	presignedExpiration time.Duration
	logger              *slog.Logger
}

// New builds a Processor. presignedExpiration defaults to
// DefaultPresignedURLExpiration when <= 0.
func New(storage Uploader, presignedExpiration time.Duration, logger *slog.Logger) *Processor {
	if presignedExpiration <= 0 {
		presignedExpiration = DefaultPresignedURLExpiration
	}
	return &Processor{storage: storage, presignedExpiration: presignedExpiration, logger: logger}
}

// Process inspects env's inline result against attrs.ResponseSizeLimitBytes.
// When the serialized result exceeds the limit (and the limit is positive),
// it spills the payload to "responses/{trace_id}" (optionally gzipped per
// attrs.CompressResponseFile), replaces AttrResult with AttrResultLocation
// + AttrResultCompressed, and returns the modified envelope. Envelopes with
// no inline result (e.g. pure error envelopes) pass through unchanged.
func (p *Processor) Process(env model.Envelope, attrs model.OperationAttributes) (model.Envelope, error) {
	rawResult, hasResult := env[model.AttrResult]
	if !hasResult {
		return env, nil
	}
	if attrs.ResponseSizeLimitBytes <= 0 {
		return env, nil
	}

	serialized, err := envcodec.Encode(rawResult)
	if err != nil {
		return nil, fmt.Errorf("result: encoding result for size check: %w", err)
	}

	if len(serialized) <= attrs.ResponseSizeLimitBytes {
		return env, nil
	}

	payload := serialized
	if attrs.CompressResponseFile {
		payload, err = gzipBytes(serialized)
		if err != nil {
			return nil, fmt.Errorf("result: compressing spilled payload: %w", err)
		}
	}

	key := fmt.Sprintf("responses/%s", attrs.TraceID)
	if err := p.storage.Write(key, payload); err != nil {
		return nil, fmt.Errorf("result: writing spilled payload to %q: %w", key, err)
	}

	url, err := p.storage.GeneratePresignedURL(key, int(p.presignedExpiration.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("result: generating presigned URL for %q: %w", key, err)
	}

	out := make(model.Envelope, len(env))
	for k, v := range env {
		out[k] = v
	}
	delete(out, model.AttrResult)
	out[model.AttrResultLocation] = url
	out[model.AttrResultCompressed] = attrs.CompressResponseFile

	p.logger.Info("spilled oversized result to storage", "key", key, "size", len(serialized), "limit", attrs.ResponseSizeLimitBytes)
	return out, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
