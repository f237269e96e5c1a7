package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when a sealed seed cannot be opened, which in
// practice means a wrong password.
var ErrDecrypt = errors.New("wallet: cannot decrypt seed")

const (
	saltSize    = 32
	kdfArgon2id = "argon2id"
)

// EncryptionParams holds the Argon2id cost parameters used to stretch
// the wallet password into the seal key.
type EncryptionParams struct {
	MemoryKiB  uint32
	Iterations uint32
	Threads    uint8
}

// DefaultParams returns interactive-login Argon2id costs: 64 MiB,
// three passes, four lanes.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		MemoryKiB:  64 * 1024,
		Iterations: 3,
		Threads:    4,
	}
}

// sealedSeed is the encrypted seed envelope stored inside the wallet
// file. The KDF parameters travel with the ciphertext so a wallet
// sealed under old costs still opens after the defaults change.
type sealedSeed struct {
	KDF        string `json:"kdf"`
	MemoryKiB  uint32 `json:"memory_kib"`
	Iterations uint32 `json:"iterations"`
	Threads    uint8  `json:"threads"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (s *sealedSeed) sealKey(password []byte) []byte {
	return argon2.IDKey(password, s.Salt, s.Iterations, s.MemoryKiB, s.Threads, chacha20poly1305.KeySize)
}

// sealSeed encrypts the seed under the password with Argon2id and
// XChaCha20-Poly1305.
func sealSeed(seed, password []byte, params EncryptionParams) (*sealedSeed, error) {
	s := &sealedSeed{
		KDF:        kdfArgon2id,
		MemoryKiB:  params.MemoryKiB,
		Iterations: params.Iterations,
		Threads:    params.Threads,
		Salt:       make([]byte, saltSize),
		Nonce:      make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(s.Salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(s.Nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	key := s.sealKey(password)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	s.Ciphertext = aead.Seal(nil, s.Nonce, seed, nil)
	return s, nil
}

// open decrypts the sealed seed. A wrong password surfaces as
// ErrDecrypt; a structurally broken envelope reports what is wrong.
func (s *sealedSeed) open(password []byte) ([]byte, error) {
	if s.KDF != kdfArgon2id {
		return nil, fmt.Errorf("unsupported kdf %q", s.KDF)
	}
	if len(s.Salt) == 0 {
		return nil, fmt.Errorf("sealed seed has no salt")
	}
	if len(s.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed seed nonce is %d bytes, want %d", len(s.Nonce), chacha20poly1305.NonceSizeX)
	}

	key := s.sealKey(password)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	seed, err := aead.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return seed, nil
}
