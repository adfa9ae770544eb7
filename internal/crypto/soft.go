package crypto

import (
	"crypto/aes"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"
)

// SoftProvider is the pure in-process backend. It handles everything the
// native provider does and additionally the legacy AES-CCM cipher, which
// stdlib crypto does not ship. Envelopes written before the GCM switch can
// only be opened through this provider.
type SoftProvider struct {
	StdProvider
}

func NewSoftProvider() *SoftProvider { return &SoftProvider{} }

func (p *SoftProvider) Encrypt(key, plaintext []byte, cp CipherParams) ([]byte, error) {
	if cp.Algorithm == AES256CCM {
		aead, err := newCCM(key, cp)
		if err != nil {
			return nil, err
		}
		return aead.Seal(nil, cp.IV, plaintext, cp.AAD), nil
	}
	return p.StdProvider.Encrypt(key, plaintext, cp)
}

func (p *SoftProvider) Decrypt(key, ciphertext []byte, cp CipherParams) ([]byte, error) {
	if cp.Algorithm == AES256CCM {
		aead, err := newCCM(key, cp)
		if err != nil {
			return nil, err
		}
		pt, err := aead.Open(nil, cp.IV, ciphertext, cp.AAD)
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		return pt, nil
	}
	return p.StdProvider.Decrypt(key, ciphertext, cp)
}

func newCCM(key []byte, cp CipherParams) (ccm.CCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCipherParams, err)
	}
	tag := cp.TagSize
	if tag == 0 {
		tag = CCMTagSize
	}
	// CCM nonce and length-field sizes trade off against each other:
	// L = 15 - len(nonce).
	lenSize := 15 - len(cp.IV)
	if lenSize < 2 || lenSize > 8 {
		return nil, fmt.Errorf("%w: ccm iv must be 7..13 bytes", ErrInvalidCipherParams)
	}
	aead, err := ccm.NewCCM(block, tag, len(cp.IV))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCipherParams, err)
	}
	return aead, nil
}
