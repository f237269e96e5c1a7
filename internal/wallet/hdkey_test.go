package wallet

import (
	"bytes"
	"testing"

	"github.com/umbra-network/umbra-wallet/pkg/crypto"
)

// testSeed returns a deterministic seed for testing.
// Uses the BIP-39 test vector: "abandon" x11 + "about" with passphrase "TREZOR".
func testSeed(t *testing.T) []byte {
	t.Helper()
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := SeedFromMnemonic(mnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic: %v", err)
	}
	return seed
}

func TestNewMasterKey(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	if priv := master.PrivateKeyBytes(); len(priv) != 32 {
		t.Errorf("private key length = %d, want 32", len(priv))
	}
	if pub := master.PublicKeyBytes(); len(pub) != 33 {
		t.Errorf("public key length = %d, want 33", len(pub))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 32)},
		{"too long", make([]byte, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMasterKey(tt.seed); err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestNewMasterKey_Deterministic(t *testing.T) {
	seed := testSeed(t)

	m1, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	m2, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	if !bytes.Equal(m1.PrivateKeyBytes(), m2.PrivateKeyBytes()) {
		t.Error("same seed should produce same master key")
	}
}

func TestPathString(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{ExternalPath(0, 0), "m/44'/2400'/0'/0/0"},
		{ExternalPath(2, 7), "m/44'/2400'/2'/0/7"},
		{ChangePath(0, 3), "m/44'/2400'/0'/1/3"},
	}

	for _, tt := range tests {
		if got := tt.path.String(); got != tt.want {
			t.Errorf("Path%+v = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDerive(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))

	key, err := master.Derive(ExternalPath(0, 0))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if len(key.PrivateKeyBytes()) != 32 {
		t.Errorf("derived private key length = %d, want 32", len(key.PrivateKeyBytes()))
	}

	// Every leg of the path feeds the derivation.
	distinct := []Path{
		ExternalPath(1, 0), // different account
		ExternalPath(0, 1), // different index
		ChangePath(0, 0),   // different chain
	}
	for _, p := range distinct {
		other, err := master.Derive(p)
		if err != nil {
			t.Fatalf("Derive(%s): %v", p, err)
		}
		if bytes.Equal(key.PrivateKeyBytes(), other.PrivateKeyBytes()) {
			t.Errorf("%s and %s derived the same key", ExternalPath(0, 0), p)
		}
	}
}

func TestDerive_Deterministic(t *testing.T) {
	seed := testSeed(t)
	m1, _ := NewMasterKey(seed)
	m2, _ := NewMasterKey(seed)

	k1, err := m1.Derive(ExternalPath(0, 42))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	k2, err := m2.Derive(ExternalPath(0, 42))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if !bytes.Equal(k1.PrivateKeyBytes(), k2.PrivateKeyBytes()) {
		t.Error("same seed and path should produce the same key")
	}
}

func TestAddress(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))
	key, err := master.Derive(ExternalPath(0, 0))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	addr := key.Address()
	if addr.IsZero() {
		t.Error("derived address should not be zero")
	}
	if addr != key.Address() {
		t.Error("Address() should be deterministic")
	}
}

func TestSigner(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))
	key, err := master.Derive(ExternalPath(0, 0))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	signer, err := key.Signer()
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}

	hash := crypto.Hash([]byte("test message"))
	sig, err := signer.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !crypto.VerifySignature(hash[:], sig, signer.PublicKey()) {
		t.Error("signature from HD-derived key should verify")
	}
}

func TestFullKeyFlow(t *testing.T) {
	// Generate mnemonic -> seed -> master -> derive -> sign -> verify.
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic: %v", err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	key, err := master.Derive(ExternalPath(0, 0))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if key.Address().IsZero() {
		t.Error("derived address should not be zero")
	}

	signer, err := key.Signer()
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	hash := crypto.Hash([]byte("transaction data"))
	sig, err := signer.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !crypto.VerifySignature(hash[:], sig, signer.PublicKey()) {
		t.Error("full key flow: signature should verify")
	}
}
