package accessor

import (
	"path/filepath"
	"testing"
)

func TestKeyPairSaveLoad(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "keys", "id.pem")
	pubPath := filepath.Join(dir, "keys", "id.pub")

	priv := testKey(t, 0)
	if err := SaveKeyPair(priv, privPath, pubPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotPriv, err := LoadPrivateKey(privPath)
	if err != nil {
		t.Fatalf("load private: %v", err)
	}
	if !gotPriv.Equal(priv) {
		t.Fatal("private key mismatch after round trip")
	}

	gotPub, err := LoadPublicKey(pubPath)
	if err != nil {
		t.Fatalf("load public: %v", err)
	}
	if !gotPub.Equal(&priv.PublicKey) {
		t.Fatal("public key mismatch after round trip")
	}
}

func TestLoadKeyRejectsWrongPEM(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "id.pem")
	pubPath := filepath.Join(dir, "id.pub")
	if err := SaveKeyPair(testKey(t, 0), privPath, pubPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Swapped files must be rejected by block type.
	if _, err := LoadPrivateKey(pubPath); err == nil {
		t.Fatal("loading a public pem as private must fail")
	}
	if _, err := LoadPublicKey(privPath); err == nil {
		t.Fatal("loading a private pem as public must fail")
	}
	if _, err := LoadPrivateKey(filepath.Join(dir, "missing.pem")); err == nil {
		t.Fatal("loading a missing file must fail")
	}
}
