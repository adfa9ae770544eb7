package accessor

import (
	"errors"
	"testing"
	"time"
)

func TestInviteTokenRoundTrip(t *testing.T) {
	signer := testKey(t, 0)
	inv := Invite{
		VaultID:     "vault-1",
		AccessorID:  "bob",
		Email:       "bob@example.com",
		Fingerprint: "1234-abcd-5678-ef01",
	}
	token, err := SignInvite(signer, inv, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := VerifyInvite(&signer.PublicKey, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *got != inv {
		t.Fatalf("invite mismatch: got %+v, want %+v", got, inv)
	}
}

func TestInviteTokenWrongKey(t *testing.T) {
	token, err := SignInvite(testKey(t, 0), Invite{AccessorID: "bob", Fingerprint: "fp"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyInvite(&testKey(t, 1).PublicKey, token); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("wrong key: got %v, want ErrInvalidInvite", err)
	}
}

func TestInviteTokenExpired(t *testing.T) {
	token, err := SignInvite(testKey(t, 0), Invite{AccessorID: "bob", Fingerprint: "fp"}, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyInvite(&testKey(t, 0).PublicKey, token); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("expired token: got %v, want ErrInvalidInvite", err)
	}
}

func TestInviteTokenGarbage(t *testing.T) {
	if _, err := VerifyInvite(&testKey(t, 0).PublicKey, "not.a.jwt"); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("garbage token: got %v, want ErrInvalidInvite", err)
	}
}

func TestSignInviteNilKey(t *testing.T) {
	if _, err := SignInvite(nil, Invite{}, time.Hour); err == nil {
		t.Fatal("sign with nil key must fail")
	}
}
