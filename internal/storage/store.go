// Package storage persists serialized container envelopes by identifier.
// Envelopes are opaque here: no plaintext, no item metadata, nothing a
// storage backend could leak.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: envelope not found")

type EnvelopeStore interface {
	Save(ctx context.Context, id string, envelope []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
