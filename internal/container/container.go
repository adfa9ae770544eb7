// Package container implements the authenticated encrypted envelope that is
// the only form in which a payload is ever persisted or shared. Two keying
// modes exist and are mutually exclusive: password-derived (direct) and
// per-participant wrapped (shared).
package container

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"

	"vaultsync/internal/accessor"
	"vaultsync/internal/crypto"
)

var (
	ErrInvalidContainerData = errors.New("container: invalid container data")
	ErrUnsupportedVersion   = errors.New("container: unsupported container version")
	ErrNotUnlocked          = errors.New("container: not unlocked")
)

// Payload owns its own byte representation; the container only sees opaque
// canonical bytes.
type Payload interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// sealPayload runs the common encryption path: fresh IV, fresh AAD, encrypt
// the payload's canonical bytes under key with the current default cipher.
func sealPayload(p crypto.Provider, key []byte, payload Payload) (envelopeBody, error) {
	var body envelopeBody
	iv, err := p.RandomBytes(crypto.GCMNonceSize)
	if err != nil {
		return body, err
	}
	aad, err := p.RandomBytes(crypto.AADSize)
	if err != nil {
		return body, err
	}
	pt, err := payload.Serialize()
	if err != nil {
		return body, err
	}
	ct, err := p.Encrypt(key, pt, crypto.CipherParams{
		Algorithm: crypto.AES256GCM,
		IV:        iv,
		AAD:       aad,
		TagSize:   crypto.GCMTagSize,
	})
	if err != nil {
		return body, err
	}
	body = envelopeBody{
		Header:     envelopeHeader{Enc: string(crypto.AES256GCM)},
		IV:         iv,
		AAD:        aad,
		Ciphertext: ct,
	}
	return body, nil
}

// PasswordContainer derives its content key entirely from a password. The
// salt is generated on first serialization and persisted for the lifetime of
// the container; iteration count is always read back from stored data so
// legacy envelopes keep deriving the same key.
type PasswordContainer struct {
	provider crypto.Provider
	KDF      crypto.KDFParams
	password []byte
}

func NewPasswordContainer(p crypto.Provider) *PasswordContainer {
	return &PasswordContainer{provider: p, KDF: crypto.DefaultKDFParams()}
}

func (c *PasswordContainer) SetPassword(password []byte) {
	c.password = append([]byte(nil), password...)
}

// Lock drops the password from memory.
func (c *PasswordContainer) Lock() {
	crypto.Zero(c.password)
	c.password = nil
}

func (c *PasswordContainer) Serialize(payload Payload) ([]byte, error) {
	if len(c.password) == 0 {
		return nil, ErrNotUnlocked
	}
	if len(c.KDF.Salt) == 0 {
		salt, err := c.provider.RandomBytes(crypto.SaltSize)
		if err != nil {
			return nil, err
		}
		c.KDF.Salt = salt
	}
	key, err := c.provider.DeriveKey(c.password, c.KDF)
	if err != nil {
		return nil, err
	}
	_ = crypto.LockBuffer(key)
	defer func() {
		crypto.Zero(key)
		_ = crypto.UnlockBuffer(key)
	}()

	body, err := sealPayload(c.provider, key, payload)
	if err != nil {
		return nil, err
	}
	kdf := c.KDF
	return json.Marshal(envelope{
		Version:             CurrentVersion,
		Envelope:            body,
		KeyDerivationParams: &kdf,
	})
}

func (c *PasswordContainer) Deserialize(data []byte, payload Payload) error {
	if len(c.password) == 0 {
		return ErrNotUnlocked
	}
	env, err := parseEnvelope(data)
	if err != nil {
		return err
	}
	if env.KeyDerivationParams == nil {
		return fmt.Errorf("%w: missing key derivation params", ErrInvalidContainerData)
	}
	c.KDF = *env.KeyDerivationParams

	key, err := c.provider.DeriveKey(c.password, c.KDF)
	if err != nil {
		return err
	}
	_ = crypto.LockBuffer(key)
	defer func() {
		crypto.Zero(key)
		_ = crypto.UnlockBuffer(key)
	}()

	pt, err := c.provider.Decrypt(key, env.Envelope.Ciphertext, cipherParamsFromHeader(env.Envelope))
	if err != nil {
		// Wrong password and tampered data are deliberately the same error.
		return err
	}
	return payload.Deserialize(pt)
}

// SharedContainer keeps one random content key and wraps an independent copy
// of it per active accessor. Adding or removing accessors changes only the
// wrapped copies, never the content key itself, so the payload ciphertext
// does not have to be rebuilt for membership changes (see Rewrap).
type SharedContainer struct {
	provider   crypto.Provider
	accessors  []*accessor.Accessor
	current    string
	privateKey *rsa.PrivateKey
	contentKey []byte
}

func NewSharedContainer(p crypto.Provider) *SharedContainer {
	return &SharedContainer{provider: p}
}

func (c *SharedContainer) Accessors() []*accessor.Accessor {
	return append([]*accessor.Accessor(nil), c.accessors...)
}

func (c *SharedContainer) Accessor(id string) *accessor.Accessor {
	for _, a := range c.accessors {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (c *SharedContainer) AddAccessor(a *accessor.Accessor) error {
	if a.ID == "" {
		return fmt.Errorf("%w: accessor without id", ErrInvalidContainerData)
	}
	if c.Accessor(a.ID) != nil {
		return fmt.Errorf("%w: duplicate accessor %q", ErrInvalidContainerData, a.ID)
	}
	c.accessors = append(c.accessors, a)
	return nil
}

// SetCurrent identifies which wrapped key entry to unwrap with the local
// private key. Holding a private key in memory is what "unlocked" means for
// this identity.
func (c *SharedContainer) SetCurrent(id string, priv *rsa.PrivateKey) {
	c.current = id
	c.privateKey = priv
}

// Lock drops all key material. The accessor list survives; it is metadata,
// not keys.
func (c *SharedContainer) Lock() {
	crypto.Zero(c.contentKey)
	c.contentKey = nil
	c.privateKey = nil
}

// activeRecipients wraps the content key once per active accessor. An
// accessor in any other state is never present in a fresh recipient list,
// even if a stale entry existed in previously stored data; that exclusion is
// the revocation mechanism.
func (c *SharedContainer) activeRecipients() ([]recipient, error) {
	var out []recipient
	for _, a := range c.accessors {
		if a.Status != accessor.StatusActive {
			continue
		}
		if a.PublicKey == nil {
			return nil, fmt.Errorf("%w: active accessor %q without public key", ErrInvalidContainerData, a.ID)
		}
		wrapped, err := c.provider.WrapKey(a.PublicKey, c.contentKey)
		if err != nil {
			return nil, err
		}
		der, err := x509.MarshalPKIXPublicKey(a.PublicKey)
		if err != nil {
			return nil, err
		}
		a.WrappedKey = wrapped
		out = append(out, recipient{
			ID:         a.ID,
			Alg:        string(crypto.RSAOAEP),
			PublicKey:  der,
			WrappedKey: wrapped,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no active accessors to encrypt for", ErrInvalidContainerData)
	}
	return out, nil
}

func (c *SharedContainer) Serialize(payload Payload) ([]byte, error) {
	if c.contentKey == nil {
		key, err := c.provider.GenerateSymmetricKey(crypto.SymmetricKeySize)
		if err != nil {
			return nil, err
		}
		_ = crypto.LockBuffer(key)
		c.contentKey = key
	}
	body, err := sealPayload(c.provider, c.contentKey, payload)
	if err != nil {
		return nil, err
	}
	recipients, err := c.activeRecipients()
	if err != nil {
		return nil, err
	}
	body.Recipients = recipients
	return json.Marshal(envelope{Version: CurrentVersion, Envelope: body})
}

func (c *SharedContainer) Deserialize(data []byte, payload Payload) error {
	env, err := parseEnvelope(data)
	if err != nil {
		return err
	}
	if len(env.Envelope.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidContainerData)
	}
	if c.current == "" || c.privateKey == nil {
		return ErrNotUnlocked
	}

	var entry *recipient
	for i := range env.Envelope.Recipients {
		if env.Envelope.Recipients[i].ID == c.current {
			entry = &env.Envelope.Recipients[i]
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: no wrapped key for %q", ErrInvalidContainerData, c.current)
	}

	key, err := c.provider.UnwrapKey(c.privateKey, entry.WrappedKey)
	if err != nil {
		return err
	}
	crypto.Zero(c.contentKey)
	_ = crypto.LockBuffer(key)
	c.contentKey = key

	if err := c.adoptRecipients(env.Envelope.Recipients); err != nil {
		return err
	}

	pt, err := c.provider.Decrypt(c.contentKey, env.Envelope.Ciphertext, cipherParamsFromHeader(env.Envelope))
	if err != nil {
		return err
	}
	return payload.Deserialize(pt)
}

// adoptRecipients syncs the in-memory accessor list with the stored
// recipient list. Entries already known keep their metadata; unknown ones
// come in as active with default permissions, since only active accessors
// are ever serialized.
func (c *SharedContainer) adoptRecipients(recipients []recipient) error {
	for _, r := range recipients {
		if a := c.Accessor(r.ID); a != nil {
			a.WrappedKey = r.WrappedKey
			continue
		}
		pub, err := parsePublicKey(r.PublicKey)
		if err != nil {
			return err
		}
		c.accessors = append(c.accessors, &accessor.Accessor{
			ID:          r.ID,
			PublicKey:   pub,
			Status:      accessor.StatusActive,
			Permissions: accessor.DefaultPermissions(),
			WrappedKey:  r.WrappedKey,
		})
	}
	return nil
}

// Rewrap rebuilds only the recipient list of a previously serialized
// envelope for the current accessor set, leaving IV, AAD and ciphertext
// untouched. This is how membership changes avoid re-encrypting a large
// payload. The container must be unlocked (content key in memory).
func (c *SharedContainer) Rewrap(data []byte) ([]byte, error) {
	if c.contentKey == nil {
		return nil, ErrNotUnlocked
	}
	env, err := parseEnvelope(data)
	if err != nil {
		return nil, err
	}
	if len(env.Envelope.Recipients) == 0 {
		return nil, fmt.Errorf("%w: not a shared envelope", ErrInvalidContainerData)
	}
	recipients, err := c.activeRecipients()
	if err != nil {
		return nil, err
	}
	env.Envelope.Recipients = recipients
	return json.Marshal(env)
}

func parsePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainerData, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: recipient key is not RSA", ErrInvalidContainerData)
	}
	return rsaPub, nil
}
