package container

import (
	"encoding/json"
	"fmt"

	"vaultsync/internal/crypto"
)

// Envelope format versions. Version 1 is the historical format that could
// carry the legacy CCM cipher; version 2 is what all new envelopes are
// written as. Anything else is rejected outright, never best-effort parsed.
const (
	LegacyVersion  = 1
	CurrentVersion = 2
)

type envelope struct {
	Version             int               `json:"version"`
	Envelope            envelopeBody      `json:"envelope"`
	KeyDerivationParams *crypto.KDFParams `json:"keyDerivationParams,omitempty"`
}

type envelopeBody struct {
	Header     envelopeHeader `json:"header"`
	IV         []byte         `json:"iv"`
	AAD        []byte         `json:"aad"`
	Ciphertext []byte         `json:"ciphertext"`
	Recipients []recipient    `json:"recipients,omitempty"`
}

type envelopeHeader struct {
	Enc string `json:"enc"`
}

type recipient struct {
	ID         string `json:"id"`
	Alg        string `json:"alg"`
	PublicKey  []byte `json:"publicKey"` // PKIX DER
	WrappedKey []byte `json:"wrappedKey"`
}

func parseEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainerData, err)
	}
	if env.Version != LegacyVersion && env.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.Envelope.IV) == 0 || len(env.Envelope.AAD) == 0 {
		return nil, fmt.Errorf("%w: missing iv or aad", ErrInvalidContainerData)
	}
	if env.KeyDerivationParams != nil && len(env.Envelope.Recipients) > 0 {
		return nil, fmt.Errorf("%w: both password and participant keying present", ErrInvalidContainerData)
	}
	return &env, nil
}

// cipherParamsFromHeader reconstructs the symmetric cipher parameters for a
// stored envelope. The algorithm identifier is taken from the header rather
// than assumed, so envelopes written under the legacy cipher keep decrypting.
func cipherParamsFromHeader(body envelopeBody) crypto.CipherParams {
	alg := crypto.CipherAlg(body.Header.Enc)
	return crypto.CipherParams{
		Algorithm: alg,
		IV:        body.IV,
		AAD:       body.AAD,
		TagSize:   tagSizeFor(alg),
	}
}

func tagSizeFor(alg crypto.CipherAlg) int {
	if alg == crypto.AES256CCM {
		return crypto.CCMTagSize
	}
	return crypto.GCMTagSize
}
