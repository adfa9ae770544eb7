// Package accessor models the parties holding (or requesting) a wrapped copy
// of a container's content key, and the trust state machine that gates key
// material ever being wrapped for them.
package accessor

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"vaultsync/internal/crypto"
)

// Status is the accessor trust/lifecycle state. Removed and rejected are
// terminal: the next serialization of the owning container drops the wrapped
// key entry for that accessor.
type Status string

const (
	StatusNone      Status = "none"
	StatusInvited   Status = "invited"
	StatusRequested Status = "requested"
	StatusActive    Status = "active"
	StatusRemoved   Status = "removed"
	StatusRejected  Status = "rejected"
)

var (
	ErrManageRequired      = errors.New("accessor: manage permission required")
	ErrMissingPublicKey    = errors.New("accessor: public key required")
	ErrInvalidTransition   = errors.New("accessor: invalid status transition")
	ErrFingerprintMismatch = errors.New("accessor: fingerprint mismatch")
)

// Permissions is a fixed set, constructed explicitly. There are no partial
// or implicit permission merges.
type Permissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Manage bool `json:"manage"`
}

func DefaultPermissions() Permissions {
	return Permissions{Read: true, Write: true}
}

// Accessor is owned by the container that grants it access. Many containers
// may reference the same logical identity; each wraps its own content key.
type Accessor struct {
	ID          string
	Email       string
	Name        string
	PublicKey   *rsa.PublicKey
	Status      Status
	Permissions Permissions

	// WrappedKey is this accessor's RSA-OAEP copy of the content key, as
	// read from or written to the envelope. Only active accessors carry one.
	WrappedKey []byte
}

// status returns the effective state. The zero value of an Accessor counts
// as none, so plainly constructed records enter the state machine cleanly.
func (a *Accessor) status() Status {
	if a.Status == "" {
		return StatusNone
	}
	return a.Status
}

// Invite moves none→invited. Only an active accessor with manage permission
// may invite, and the invitee's public key must already be known so a
// wrapped key can be produced once they confirm.
func (a *Accessor) Invite(by *Accessor) error {
	if by == nil || by.Status != StatusActive || !by.Permissions.Manage {
		return ErrManageRequired
	}
	if a.PublicKey == nil {
		return ErrMissingPublicKey
	}
	if a.status() != StatusNone {
		return fmt.Errorf("%w: %s -> invited", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusInvited
	return nil
}

// Request moves none→requested: the invitee registers interest. No key
// material is exchanged at this point.
func (a *Accessor) Request() error {
	if a.status() != StatusNone {
		return fmt.Errorf("%w: %s -> requested", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusRequested
	return nil
}

// Activate moves invited|requested→active. The caller passes the fingerprint
// confirmed out of band (human-read code); it must match the accessor's
// public key before that key is ever trusted to wrap the content key.
func (a *Accessor) Activate(provider crypto.Provider, confirmedFingerprint string) error {
	if a.Status != StatusInvited && a.Status != StatusRequested {
		return fmt.Errorf("%w: %s -> active", ErrInvalidTransition, a.Status)
	}
	if a.PublicKey == nil {
		return ErrMissingPublicKey
	}
	fp, err := provider.Fingerprint(a.PublicKey)
	if err != nil {
		return err
	}
	if fp != confirmedFingerprint {
		return ErrFingerprintMismatch
	}
	a.Status = StatusActive
	return nil
}

// Remove revokes an active accessor. The wrapped key entry is dropped
// immediately; the next serialization excludes them. Ciphertext already
// distributed under the old envelopes is not retroactively securable.
func (a *Accessor) Remove() error {
	if a.Status != StatusActive {
		return fmt.Errorf("%w: %s -> removed", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusRemoved
	a.Permissions = Permissions{}
	a.WrappedKey = nil
	return nil
}

// Reject declines a pending access request.
func (a *Accessor) Reject() error {
	if a.Status != StatusRequested {
		return fmt.Errorf("%w: %s -> rejected", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusRejected
	a.Permissions = Permissions{}
	a.WrappedKey = nil
	return nil
}
