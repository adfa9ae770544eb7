package container

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"vaultsync/internal/accessor"
	"vaultsync/internal/crypto"
)

// bytesPayload is the simplest possible payload for exercising the envelope
// machinery without dragging in the collection package.
type bytesPayload struct {
	data []byte
}

func (p *bytesPayload) Serialize() ([]byte, error) {
	return append([]byte(nil), p.data...), nil
}

func (p *bytesPayload) Deserialize(b []byte) error {
	p.data = append([]byte(nil), b...)
	return nil
}

// RSA key generation dominates test time, so a small fixed pool of keys is
// generated once and shared.
var (
	keyOnce  sync.Once
	testKeys []*rsa.PrivateKey
)

func testKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		p := crypto.NewStdProvider()
		for n := 0; n < 3; n++ {
			k, err := p.GenerateKeyPair(crypto.RSAKeyBits)
			if err != nil {
				panic(err)
			}
			testKeys = append(testKeys, k)
		}
	})
	return testKeys[i]
}

func fastPasswordContainer() *PasswordContainer {
	c := NewPasswordContainer(crypto.Default())
	c.KDF.Iterations = 1000
	return c
}

func TestPasswordContainerRoundTrip(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("hunter2"))
	in := &bytesPayload{data: []byte(`{"items":[]}`)}

	data, err := c.Serialize(in)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	d := NewPasswordContainer(crypto.Default())
	d.SetPassword([]byte("hunter2"))
	out := &bytesPayload{}
	if err := d.Deserialize(data, out); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !bytes.Equal(in.data, out.data) {
		t.Fatal("payload mismatch after round trip")
	}
}

func TestPasswordContainerWrongPassword(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("right"))
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	d := NewPasswordContainer(crypto.Default())
	d.SetPassword([]byte("wrong"))
	err = d.Deserialize(data, &bytesPayload{})
	if !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Fatalf("wrong password: got %v, want ErrDecryptionFailed", err)
	}
}

func TestPasswordContainerLocked(t *testing.T) {
	c := fastPasswordContainer()
	if _, err := c.Serialize(&bytesPayload{}); !errors.Is(err, ErrNotUnlocked) {
		t.Fatalf("serialize locked: got %v, want ErrNotUnlocked", err)
	}
	c.SetPassword([]byte("pw"))
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	c.Lock()
	if err := c.Deserialize(data, &bytesPayload{}); !errors.Is(err, ErrNotUnlocked) {
		t.Fatalf("deserialize locked: got %v, want ErrNotUnlocked", err)
	}
}

func TestPasswordContainerSaltPersists(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("pw"))

	d1, err := c.Serialize(&bytesPayload{data: []byte("one")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	d2, err := c.Serialize(&bytesPayload{data: []byte("one")})
	if err != nil {
		t.Fatalf("serialize again: %v", err)
	}

	var e1, e2 envelope
	if err := json.Unmarshal(d1, &e1); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(d2, &e2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(e1.KeyDerivationParams.Salt, e2.KeyDerivationParams.Salt) {
		t.Fatal("salt must persist across serializations")
	}
	if bytes.Equal(e1.Envelope.IV, e2.Envelope.IV) {
		t.Fatal("iv must be fresh on every serialization")
	}
	if bytes.Equal(e1.Envelope.Ciphertext, e2.Envelope.Ciphertext) {
		t.Fatal("ciphertext must differ under a fresh iv")
	}
}

func TestPasswordContainerAdoptsStoredKDF(t *testing.T) {
	c := fastPasswordContainer()
	c.KDF.Iterations = 2500
	c.SetPassword([]byte("pw"))
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	// The reader starts with the defaults and must pick up the stored count.
	d := NewPasswordContainer(crypto.Default())
	d.SetPassword([]byte("pw"))
	if err := d.Deserialize(data, &bytesPayload{}); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if d.KDF.Iterations != 2500 {
		t.Fatalf("iterations not adopted from envelope: got %d", d.KDF.Iterations)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("pw"))
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	env.Version = 3
	mut, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.Deserialize(mut, &bytesPayload{}); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("version 3: got %v, want ErrUnsupportedVersion", err)
	}
}

func TestMalformedEnvelopeRejected(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("pw"))

	cases := map[string]string{
		"not json":       `{{{`,
		"missing iv":     `{"version":2,"envelope":{"header":{"enc":"aes256-gcm"},"aad":"YWFk","ciphertext":"eA=="},"keyDerivationParams":{"algorithm":"pbkdf2","hash":"sha-256","iterations":1000,"keySize":32,"salt":"c2FsdHNhbHRzYWx0c2E="}}`,
		"dual keying":    `{"version":2,"envelope":{"header":{"enc":"aes256-gcm"},"iv":"aXZpdml2aXZpdml2","aad":"YWFk","ciphertext":"eA==","recipients":[{"id":"a","alg":"rsa-oaep-sha256","publicKey":"eA==","wrappedKey":"eA=="}]},"keyDerivationParams":{"algorithm":"pbkdf2","hash":"sha-256","iterations":1000,"keySize":32,"salt":"c2FsdHNhbHRzYWx0c2E="}}`,
		"no kdf section": `{"version":2,"envelope":{"header":{"enc":"aes256-gcm"},"iv":"aXZpdml2aXZpdml2","aad":"YWFk","ciphertext":"eA=="}}`,
	}
	for name, raw := range cases {
		if err := c.Deserialize([]byte(raw), &bytesPayload{}); !errors.Is(err, ErrInvalidContainerData) {
			t.Fatalf("%s: got %v, want ErrInvalidContainerData", name, err)
		}
	}
}

func TestCiphertextTamperRejected(t *testing.T) {
	c := fastPasswordContainer()
	c.SetPassword([]byte("pw"))
	data, err := c.Serialize(&bytesPayload{data: []byte("sensitive")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	env.Envelope.Ciphertext[0] ^= 0x01
	mut, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.Deserialize(mut, &bytesPayload{}); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Fatalf("tampered ciphertext: got %v, want ErrDecryptionFailed", err)
	}
}

// A version 1 envelope written under the legacy cipher with the historical
// iteration count must keep decrypting.
func TestLegacyEnvelopeDecrypts(t *testing.T) {
	p := crypto.NewSoftProvider()
	password := []byte("old-password")
	kdf := crypto.KDFParams{
		Algorithm:  crypto.PBKDF2,
		Hash:       crypto.SHA256,
		Iterations: crypto.LegacyIterations,
		KeySize:    crypto.SymmetricKeySize,
	}
	var err error
	kdf.Salt, err = p.RandomBytes(crypto.SaltSize)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	key, err := p.DeriveKey(password, kdf)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	iv, _ := p.RandomBytes(crypto.CCMNonceSize)
	aad, _ := p.RandomBytes(crypto.AADSize)
	plaintext := []byte(`{"legacy":true}`)
	ct, err := p.Encrypt(key, plaintext, crypto.CipherParams{
		Algorithm: crypto.AES256CCM,
		IV:        iv,
		AAD:       aad,
		TagSize:   crypto.CCMTagSize,
	})
	if err != nil {
		t.Fatalf("ccm encrypt: %v", err)
	}
	data, err := json.Marshal(envelope{
		Version: LegacyVersion,
		Envelope: envelopeBody{
			Header:     envelopeHeader{Enc: string(crypto.AES256CCM)},
			IV:         iv,
			AAD:        aad,
			Ciphertext: ct,
		},
		KeyDerivationParams: &kdf,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	c := NewPasswordContainer(crypto.Default())
	c.SetPassword(password)
	out := &bytesPayload{}
	if err := c.Deserialize(data, out); err != nil {
		t.Fatalf("legacy deserialize: %v", err)
	}
	if !bytes.Equal(plaintext, out.data) {
		t.Fatal("legacy payload mismatch")
	}

	// The native provider cannot open it.
	n := NewPasswordContainer(crypto.NewStdProvider())
	n.SetPassword(password)
	if err := n.Deserialize(data, &bytesPayload{}); !errors.Is(err, crypto.ErrInvalidCipherParams) {
		t.Fatalf("native provider on ccm envelope: got %v, want ErrInvalidCipherParams", err)
	}
}

func activeAccessor(t *testing.T, id string, keyIdx int) *accessor.Accessor {
	t.Helper()
	return &accessor.Accessor{
		ID:          id,
		Status:      accessor.StatusActive,
		Permissions: accessor.DefaultPermissions(),
		PublicKey:   &testKey(t, keyIdx).PublicKey,
	}
}

func TestSharedContainerRoundTrip(t *testing.T) {
	p := crypto.Default()
	c := NewSharedContainer(p)
	if err := c.AddAccessor(activeAccessor(t, "alice", 0)); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	if err := c.AddAccessor(activeAccessor(t, "bob", 1)); err != nil {
		t.Fatalf("add bob: %v", err)
	}

	in := &bytesPayload{data: []byte("shared secret")}
	data, err := c.Serialize(in)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	for i, id := range []string{"alice", "bob"} {
		d := NewSharedContainer(p)
		d.SetCurrent(id, testKey(t, i))
		out := &bytesPayload{}
		if err := d.Deserialize(data, out); err != nil {
			t.Fatalf("%s deserialize: %v", id, err)
		}
		if !bytes.Equal(in.data, out.data) {
			t.Fatalf("%s payload mismatch", id)
		}
		// Deserialization adopts the stored recipient list.
		if len(d.Accessors()) != 2 {
			t.Fatalf("%s adopted %d accessors, want 2", id, len(d.Accessors()))
		}
	}
}

func TestSharedContainerUnknownRecipient(t *testing.T) {
	p := crypto.Default()
	c := NewSharedContainer(p)
	if err := c.AddAccessor(activeAccessor(t, "alice", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	d := NewSharedContainer(p)
	d.SetCurrent("mallory", testKey(t, 2))
	err = d.Deserialize(data, &bytesPayload{})
	if !errors.Is(err, ErrInvalidContainerData) {
		t.Fatalf("unknown recipient: got %v, want ErrInvalidContainerData", err)
	}
}

func TestSharedContainerRevocation(t *testing.T) {
	p := crypto.Default()
	c := NewSharedContainer(p)
	if err := c.AddAccessor(activeAccessor(t, "alice", 0)); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	if err := c.AddAccessor(activeAccessor(t, "bob", 1)); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if _, err := c.Serialize(&bytesPayload{data: []byte("v1")}); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	if err := c.Accessor("bob").Remove(); err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	data, err := c.Serialize(&bytesPayload{data: []byte("v2")})
	if err != nil {
		t.Fatalf("serialize after revoke: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Envelope.Recipients) != 1 || env.Envelope.Recipients[0].ID != "alice" {
		t.Fatalf("revoked accessor still in recipients: %+v", env.Envelope.Recipients)
	}

	d := NewSharedContainer(p)
	d.SetCurrent("bob", testKey(t, 1))
	if err := d.Deserialize(data, &bytesPayload{}); !errors.Is(err, ErrInvalidContainerData) {
		t.Fatalf("revoked accessor decrypt: got %v, want ErrInvalidContainerData", err)
	}
}

func TestSharedContainerNoActiveAccessors(t *testing.T) {
	c := NewSharedContainer(crypto.Default())
	a := activeAccessor(t, "alice", 0)
	a.Status = accessor.StatusInvited
	if err := c.AddAccessor(a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := c.Serialize(&bytesPayload{data: []byte("x")}); !errors.Is(err, ErrInvalidContainerData) {
		t.Fatalf("no active accessors: got %v, want ErrInvalidContainerData", err)
	}
}

func TestRewrapChangesOnlyRecipients(t *testing.T) {
	p := crypto.Default()
	c := NewSharedContainer(p)
	if err := c.AddAccessor(activeAccessor(t, "alice", 0)); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	data, err := c.Serialize(&bytesPayload{data: []byte("large payload")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	if err := c.AddAccessor(activeAccessor(t, "bob", 1)); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	rewrapped, err := c.Rewrap(data)
	if err != nil {
		t.Fatalf("rewrap: %v", err)
	}

	var before, after envelope
	if err := json.Unmarshal(data, &before); err != nil {
		t.Fatalf("unmarshal before: %v", err)
	}
	if err := json.Unmarshal(rewrapped, &after); err != nil {
		t.Fatalf("unmarshal after: %v", err)
	}
	if !bytes.Equal(before.Envelope.IV, after.Envelope.IV) {
		t.Fatal("rewrap must not touch the iv")
	}
	if !bytes.Equal(before.Envelope.Ciphertext, after.Envelope.Ciphertext) {
		t.Fatal("rewrap must not touch the ciphertext")
	}
	if len(after.Envelope.Recipients) != 2 {
		t.Fatalf("rewrapped recipients: got %d, want 2", len(after.Envelope.Recipients))
	}

	d := NewSharedContainer(p)
	d.SetCurrent("bob", testKey(t, 1))
	out := &bytesPayload{}
	if err := d.Deserialize(rewrapped, out); err != nil {
		t.Fatalf("bob after rewrap: %v", err)
	}
	if string(out.data) != "large payload" {
		t.Fatal("payload mismatch after rewrap")
	}
}

func TestRewrapRequiresUnlocked(t *testing.T) {
	p := crypto.Default()
	c := NewSharedContainer(p)
	if err := c.AddAccessor(activeAccessor(t, "alice", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	data, err := c.Serialize(&bytesPayload{data: []byte("x")})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	c.Lock()
	if _, err := c.Rewrap(data); !errors.Is(err, ErrNotUnlocked) {
		t.Fatalf("rewrap locked: got %v, want ErrNotUnlocked", err)
	}
}
