package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"
	"github.com/umbra-network/umbra-wallet/pkg/crypto"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// BIP-44 tree layout: m/44'/2400'/account'/change/index.
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44

	// coinTypeUmbra is a placeholder coin type.
	// TODO: register a SLIP-44 coin type number.
	coinTypeUmbra = bip32.FirstHardenedChild + 2400

	// ChangeExternal is the receiving chain; ChangeInternal holds
	// change addresses.
	ChangeExternal uint32 = 0
	ChangeInternal uint32 = 1
)

// Path locates one key in a wallet's BIP-44 tree. The purpose and coin
// type are fixed for Umbra and not part of the value.
type Path struct {
	Account uint32
	Change  uint32
	Index   uint32
}

// ExternalPath is the receiving key at account/index.
func ExternalPath(account, index uint32) Path {
	return Path{Account: account, Change: ChangeExternal, Index: index}
}

// ChangePath is the internal change key at account/index.
func ChangePath(account, index uint32) Path {
	return Path{Account: account, Change: ChangeInternal, Index: index}
}

func (p Path) String() string {
	return fmt.Sprintf("m/44'/2400'/%d'/%d/%d", p.Account, p.Change, p.Index)
}

// HDKey is one node of the BIP-32 tree, always carrying its private
// key: the wallet only derives from a decrypted master.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey builds the tree root from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// Derive walks from this key (the master) down to the key at p. The
// purpose, coin-type, and account levels are hardened; change and
// index are not.
func (k *HDKey) Derive(p Path) (*HDKey, error) {
	current := k.key
	for _, idx := range []uint32{
		purposeBIP44,
		coinTypeUmbra,
		bip32.FirstHardenedChild + p.Account,
		p.Change,
		p.Index,
	} {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", p, err)
		}
		current = child
	}
	return &HDKey{key: current}, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
func (k *HDKey) PrivateKeyBytes() []byte {
	// bip32 stores private keys as 33 bytes with a leading 0x00.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// Signer returns the Schnorr signing key for this node. Callers zero
// it after use.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	return crypto.PrivateKeyFromBytes(k.PrivateKeyBytes())
}

// Address derives the Umbra address from this node's public key:
// BLAKE3 of the compressed pubkey.
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.PublicKeyBytes())
}
