// Package sync reconciles a local collection with the persisted remote copy
// of the same vault: load envelope, unlock, merge, re-encrypt, save. No
// network transport lives here; the storage adapter is the only collaborator.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"vaultsync/internal/audit"
	"vaultsync/internal/collection"
	"vaultsync/internal/container"
	"vaultsync/internal/logging"
	"vaultsync/internal/storage"
)

var ErrUnlockThrottled = errors.New("sync: too many unlock attempts")

// Container is the envelope surface the syncer needs; both password and
// shared containers satisfy it. The caller unlocks the container (password
// or current-participant key) before handing it over.
type Container interface {
	Serialize(container.Payload) ([]byte, error)
	Deserialize([]byte, container.Payload) error
}

type Syncer struct {
	store   storage.EnvelopeStore
	log     logging.Logger
	audit   *audit.Log
	limiter *multiLimiter
}

func New(store storage.EnvelopeStore, log logging.Logger, auditLog *audit.Log) *Syncer {
	return &Syncer{
		store: store,
		log:   log,
		audit: auditLog,
		// One unlock attempt per 2s sustained, short bursts allowed.
		limiter: newMultiLimiter(rate.Every(2*time.Second), 5, 10*time.Minute),
	}
}

// Sync merges the stored copy of the vault into local and writes the merged
// state back under fresh cipher parameters. If nothing is stored yet, the
// local state becomes the first upload. The returned changes are the ones
// applied locally; pushed-forward local edits travel inside the uploaded
// envelope itself.
func (s *Syncer) Sync(ctx context.Context, id string, ctr Container, local *collection.Collection) ([]collection.Change, error) {
	if !s.limiter.allow(id) {
		s.audit.Append(audit.OpUnlockThrottle, id, "")
		return nil, ErrUnlockThrottled
	}

	envelope, err := s.store.Load(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Infof("vault %s has no stored copy yet, pushing local state", id)
		if err := s.Push(ctx, id, ctr, local); err != nil {
			return nil, err
		}
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading vault %s: %w", id, err)
	}

	remote := collection.New()
	if err := ctr.Deserialize(envelope, remote); err != nil {
		// Wrong password, tampering and malformed data all surface to the
		// caller untouched; nothing is retried with a mutated key.
		return nil, err
	}
	s.audit.Append(audit.OpUnlock, id, "")

	changes := local.Merge(remote)
	s.log.Debugf("merged vault %s: %d local changes, revision %s", id, len(changes), local.Revision.ID)

	if err := s.Push(ctx, id, ctr, local); err != nil {
		return nil, err
	}
	s.audit.Append(audit.OpSync, id, fmt.Sprintf("%d changes", len(changes)))
	return changes, nil
}

// Push serializes the collection and saves the envelope. Every call
// re-encrypts under fresh IV and AAD; serialized envelopes are never reused.
func (s *Syncer) Push(ctx context.Context, id string, ctr Container, col *collection.Collection) error {
	envelope, err := ctr.Serialize(col)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, id, envelope); err != nil {
		return fmt.Errorf("saving vault %s: %w", id, err)
	}
	s.audit.Append(audit.OpPush, id, "")
	return nil
}
