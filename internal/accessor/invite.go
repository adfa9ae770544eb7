package accessor

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Invite is the signed grant an owner hands to an invitee. The token binds
// the invitee's key fingerprint, so the invitee can prove they hold the key
// the owner saw when inviting, and the owner's signature proves the grant is
// authentic.
type Invite struct {
	VaultID     string
	AccessorID  string
	Email       string
	Fingerprint string
}

var ErrInvalidInvite = errors.New("accessor: invalid invite token")

const inviteIssuer = "vaultsync"

// SignInvite issues an RSA-PSS-signed token for the invite, valid for ttl.
func SignInvite(priv *rsa.PrivateKey, inv Invite, ttl time.Duration) (string, error) {
	if priv == nil {
		return "", ErrMissingPublicKey
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   inviteIssuer,
		"sub":   inv.AccessorID,
		"vault": inv.VaultID,
		"email": inv.Email,
		"fpr":   inv.Fingerprint,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"jti":   uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	return token.SignedString(priv)
}

// VerifyInvite validates the token against the inviter's public key and
// returns the embedded invite. Expired, malformed or wrongly-signed tokens
// fail with ErrInvalidInvite.
func VerifyInvite(pub *rsa.PublicKey, token string) (*Invite, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSAPSS); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return pub, nil
	}, jwt.WithIssuer(inviteIssuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidInvite
	}
	inv := &Invite{}
	inv.AccessorID, _ = claims["sub"].(string)
	inv.VaultID, _ = claims["vault"].(string)
	inv.Email, _ = claims["email"].(string)
	inv.Fingerprint, _ = claims["fpr"].(string)
	if inv.AccessorID == "" || inv.Fingerprint == "" {
		return nil, ErrInvalidInvite
	}
	return inv, nil
}
