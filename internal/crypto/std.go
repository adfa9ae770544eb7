package crypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// StdProvider is the native backend: stdlib crypto, which uses hardware AES
// where available. It does not implement the legacy CCM cipher; use the
// software provider to read old data.
type StdProvider struct{}

func NewStdProvider() *StdProvider { return &StdProvider{} }

func (p *StdProvider) RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length", ErrInvalidKeyParams)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *StdProvider) Hash(data []byte, alg HashAlg) ([]byte, error) {
	switch alg {
	case SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: unsupported hash %q", ErrInvalidKeyParams, alg)
	}
}

func (p *StdProvider) DeriveKey(password []byte, kp KDFParams) ([]byte, error) {
	if len(password) == 0 || len(kp.Salt) == 0 {
		return nil, fmt.Errorf("%w: missing password or salt", ErrInvalidKeyParams)
	}
	if kp.Iterations <= 0 || kp.KeySize <= 0 {
		return nil, fmt.Errorf("%w: iterations and key size must be positive", ErrInvalidKeyParams)
	}
	switch kp.Algorithm {
	case PBKDF2:
		if kp.Hash != SHA256 {
			return nil, fmt.Errorf("%w: unsupported hash %q", ErrInvalidKeyParams, kp.Hash)
		}
		return pbkdf2.Key(password, kp.Salt, kp.Iterations, kp.KeySize, sha256.New), nil
	case Argon2id:
		mem := kp.Memory
		if mem == 0 {
			mem = 64 * 1024
		}
		par := kp.Parallelism
		if par == 0 {
			par = 1
		}
		return argon2.IDKey(password, kp.Salt, uint32(kp.Iterations), mem, par, uint32(kp.KeySize)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrInvalidKeyParams, kp.Algorithm)
	}
}

func (p *StdProvider) GenerateSymmetricKey(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: key size must be positive", ErrInvalidKeyParams)
	}
	return p.RandomBytes(size)
}

func (p *StdProvider) GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < RSAKeyBits {
		return nil, fmt.Errorf("%w: rsa keys below %d bits are rejected", ErrInvalidKeyParams, RSAKeyBits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

func (p *StdProvider) Encrypt(key, plaintext []byte, cp CipherParams) ([]byte, error) {
	aead, err := p.newAEAD(key, cp)
	if err != nil {
		return nil, err
	}
	if len(cp.IV) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrInvalidCipherParams, aead.NonceSize())
	}
	return aead.Seal(nil, cp.IV, plaintext, cp.AAD), nil
}

func (p *StdProvider) Decrypt(key, ciphertext []byte, cp CipherParams) ([]byte, error) {
	aead, err := p.newAEAD(key, cp)
	if err != nil {
		return nil, err
	}
	if len(cp.IV) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrInvalidCipherParams, aead.NonceSize())
	}
	pt, err := aead.Open(nil, cp.IV, ciphertext, cp.AAD)
	if err != nil {
		// Covers both wrong key and tampered data. Intentionally not
		// distinguished further.
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func (p *StdProvider) newAEAD(key []byte, cp CipherParams) (cipher.AEAD, error) {
	switch cp.Algorithm {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCipherParams, err)
		}
		tag := cp.TagSize
		if tag == 0 {
			tag = GCMTagSize
		}
		aead, err := cipher.NewGCMWithTagSize(block, tag)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCipherParams, err)
		}
		return aead, nil
	case AES256CCM:
		return nil, fmt.Errorf("%w: %s requires the software provider", ErrInvalidCipherParams, AES256CCM)
	default:
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrInvalidCipherParams, cp.Algorithm)
	}
}

func (p *StdProvider) WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: missing public key", ErrInvalidKeyParams)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return wrapped, nil
}

func (p *StdProvider) UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: missing private key", ErrInvalidKeyParams)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return key, nil
}

func (p *StdProvider) Sign(key any, data []byte, sp SigningParams) ([]byte, error) {
	switch sp.Algorithm {
	case HMACSHA256:
		k, ok := key.([]byte)
		if !ok || len(k) == 0 {
			return nil, fmt.Errorf("%w: hmac needs a byte key", ErrInvalidKeyParams)
		}
		mac := hmac.New(sha256.New, k)
		mac.Write(data)
		return mac.Sum(nil), nil
	case RSAPSSSHA256:
		k, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: rsa-pss needs an rsa private key", ErrInvalidKeyParams)
		}
		digest := sha256.Sum256(data)
		return rsa.SignPSS(rand.Reader, k, crypto.SHA256, digest[:], nil)
	default:
		return nil, fmt.Errorf("%w: unsupported signature algorithm %q", ErrInvalidKeyParams, sp.Algorithm)
	}
}

func (p *StdProvider) Verify(key any, data, sig []byte, sp SigningParams) (bool, error) {
	switch sp.Algorithm {
	case HMACSHA256:
		expected, err := p.Sign(key, data, sp)
		if err != nil {
			return false, err
		}
		return subtle.ConstantTimeCompare(expected, sig) == 1, nil
	case RSAPSSSHA256:
		k, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: rsa-pss needs an rsa public key", ErrInvalidKeyParams)
		}
		digest := sha256.Sum256(data)
		return rsa.VerifyPSS(k, crypto.SHA256, digest[:], sig, nil) == nil, nil
	default:
		return false, fmt.Errorf("%w: unsupported signature algorithm %q", ErrInvalidKeyParams, sp.Algorithm)
	}
}

// Fingerprint derives a stable 16-byte digest of the public key with
// HKDF-SHA256 and renders it as dash-separated hex groups for human
// comparison.
func (p *StdProvider) Fingerprint(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: missing public key", ErrInvalidKeyParams)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	stream := hkdf.New(sha256.New, der, nil, []byte("vaultsync/fingerprint/v1"))
	digest := make([]byte, 16)
	if _, err := io.ReadFull(stream, digest); err != nil {
		return "", err
	}
	enc := hex.EncodeToString(digest)
	groups := make([]string, 0, len(enc)/4)
	for i := 0; i < len(enc); i += 4 {
		groups = append(groups, enc[i:i+4])
	}
	return strings.Join(groups, "-"), nil
}
