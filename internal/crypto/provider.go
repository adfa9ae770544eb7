package crypto

import (
	"crypto/rsa"
	"errors"
)

// Algorithm identifiers as they appear in serialized envelopes. The sets are
// closed: dispatch switches must handle every constant and reject anything
// else with the matching params error.
type (
	CipherAlg string
	HashAlg   string
	KDFAlg    string
	SigAlg    string
)

const (
	// AES256GCM is the cipher written by all new envelopes.
	AES256GCM CipherAlg = "aes256-gcm"
	// AES256CCM is the legacy cipher. Old envelopes carrying it must stay
	// readable indefinitely; only the software backend implements it.
	AES256CCM CipherAlg = "aes256-ccm"
	// RSAOAEP wraps content keys for shared containers.
	RSAOAEP CipherAlg = "rsa-oaep-sha256"
)

const SHA256 HashAlg = "sha-256"

const (
	PBKDF2   KDFAlg = "pbkdf2"
	Argon2id KDFAlg = "argon2id"
)

const (
	HMACSHA256   SigAlg = "hmac-sha256"
	RSAPSSSHA256 SigAlg = "rsa-pss-sha256"
)

const (
	GCMNonceSize = 12
	GCMTagSize   = 16
	// Legacy CCM envelopes used a 13-byte nonce and a truncated 8-byte tag.
	CCMNonceSize = 13
	CCMTagSize   = 8

	AADSize  = 16
	SaltSize = 16

	SymmetricKeySize = 32
	RSAKeyBits       = 2048

	// DefaultIterations is the PBKDF2 count for new envelopes.
	// LegacyIterations is what historical data was written with; the count is
	// always read back from the stored envelope, never recomputed.
	DefaultIterations = 50000
	LegacyIterations  = 10000
)

var (
	ErrInvalidCipherParams = errors.New("crypto: invalid cipher params")
	ErrInvalidKeyParams    = errors.New("crypto: invalid key params")
	ErrDecryptionFailed    = errors.New("crypto: decryption failed")
	ErrEncryptionFailed    = errors.New("crypto: encryption failed")
)

// CipherParams selects a symmetric AEAD and carries its per-message inputs.
// IV and AAD are generated fresh for every encryption; a (key, IV) pair must
// never repeat.
type CipherParams struct {
	Algorithm CipherAlg
	IV        []byte
	AAD       []byte
	TagSize   int // bytes; zero means the algorithm default
}

// KDFParams describes password-based key derivation. Salt is generated once
// per container and persisted so the same password always rederives the same
// key. Memory and Parallelism only apply to argon2id.
type KDFParams struct {
	Algorithm   KDFAlg  `json:"algorithm"`
	Hash        HashAlg `json:"hash"`
	Iterations  int     `json:"iterations"`
	KeySize     int     `json:"keySize"`
	Salt        []byte  `json:"salt"`
	Memory      uint32  `json:"memory,omitempty"`
	Parallelism uint8   `json:"parallelism,omitempty"`
}

// DefaultKDFParams returns the derivation settings for new envelopes. The
// salt is left empty; the container generates and persists it on first
// serialization.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm:  PBKDF2,
		Hash:       SHA256,
		Iterations: DefaultIterations,
		KeySize:    SymmetricKeySize,
	}
}

type SigningParams struct {
	Algorithm SigAlg
}

// Provider exposes the primitive operations the container and accessor
// layers build on. Implementations are stateless and swappable; callers
// inject the provider explicitly rather than reading ambient globals. A
// provider must never widen or narrow a security parameter (key size,
// iteration count, tag size) supplied by the caller.
type Provider interface {
	// RandomBytes returns n cryptographically secure random bytes. It never
	// falls back to a non-CSPRNG source.
	RandomBytes(n int) ([]byte, error)

	Hash(data []byte, alg HashAlg) ([]byte, error)

	// DeriveKey stretches a password into a symmetric key. Missing or
	// malformed inputs fail with ErrInvalidKeyParams.
	DeriveKey(password []byte, p KDFParams) ([]byte, error)

	GenerateSymmetricKey(size int) ([]byte, error)
	GenerateKeyPair(bits int) (*rsa.PrivateKey, error)

	// Encrypt and Decrypt dispatch on p.Algorithm. Unsupported combinations
	// fail with ErrInvalidCipherParams. Tag verification failure on decrypt
	// fails with ErrDecryptionFailed and never returns partial plaintext.
	Encrypt(key, plaintext []byte, p CipherParams) ([]byte, error)
	Decrypt(key, ciphertext []byte, p CipherParams) ([]byte, error)

	// WrapKey and UnwrapKey move a raw content key under an RSA-OAEP
	// envelope for a single recipient.
	WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error)
	UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error)

	// Sign and Verify cover accessor/invite authenticity, not the container
	// envelope itself. key is []byte for HMAC, *rsa.PrivateKey /
	// *rsa.PublicKey for RSA-PSS.
	Sign(key any, data []byte, p SigningParams) ([]byte, error)
	Verify(key any, data, sig []byte, p SigningParams) (bool, error)

	// Fingerprint computes the stable digest used for human identity
	// confirmation of a public key.
	Fingerprint(pub *rsa.PublicKey) (string, error)
}

// Default returns the provider used when the caller has no reason to pick a
// backend: the software provider, which handles everything the native one
// does plus the legacy cipher.
func Default() Provider {
	return NewSoftProvider()
}

// Zero overwrites key material in memory. Works on all operating systems.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
