// Package wallet implements HD key management for Umbra: BIP-39
// mnemonics, BIP-32/44 derivation, the encrypted on-disk keystore, and
// the crypto provider handed to transaction construction.
package wallet

import (
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// CryptoProvider abstracts the key material operations the engine
// needs: address derivation and digest signing. Wallet is the local HD
// implementation; hardware keys or a remote proving service can
// substitute without the engine noticing.
type CryptoProvider interface {
	// Address returns the external receiving address at the BIP-44
	// account/index pair.
	Address(account, index uint32) (types.Address, error)
	// Sign produces a Schnorr signature over a 32-byte digest with the
	// key at the account/index pair.
	Sign(account, index uint32, digest []byte) ([]byte, error)
}

// Wallet is an opened (decrypted) HD wallet.
type Wallet struct {
	Name   string
	master *HDKey
	ks     *Keystore
}

var _ CryptoProvider = (*Wallet)(nil)

// Create generates a fresh mnemonic, persists the sealed seed under
// name, and returns the opened wallet plus the mnemonic for the user
// to back up. The mnemonic is shown exactly once.
func Create(ks *Keystore, name string, password []byte, params EncryptionParams) (*Wallet, string, error) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return nil, "", err
	}
	w, err := Restore(ks, name, mnemonic, "", password, params)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// Restore creates the wallet file from an existing mnemonic and opens
// it. The mnemonic's whitespace is normalized first, so a phrase
// pasted with line breaks restores the same wallet.
func Restore(ks *Keystore, name, mnemonic, passphrase string, password []byte, params EncryptionParams) (*Wallet, error) {
	seed, err := SeedFromMnemonic(NormalizeMnemonic(mnemonic), passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(seed)

	if err := ks.Create(name, seed, password, params); err != nil {
		return nil, err
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &Wallet{Name: name, master: master, ks: ks}, nil
}

// Open decrypts an existing wallet file.
func Open(ks *Keystore, name string, password []byte) (*Wallet, error) {
	seed, err := ks.Load(name, password)
	if err != nil {
		return nil, err
	}
	defer zero(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &Wallet{Name: name, master: master, ks: ks}, nil
}

// Address returns the external receiving address at account/index.
func (w *Wallet) Address(account, index uint32) (types.Address, error) {
	key, err := w.master.Derive(ExternalPath(account, index))
	if err != nil {
		return types.Address{}, err
	}
	return key.Address(), nil
}

// ChangeAddress returns the internal (change) address at account/index.
func (w *Wallet) ChangeAddress(account, index uint32) (types.Address, error) {
	key, err := w.master.Derive(ChangePath(account, index))
	if err != nil {
		return types.Address{}, err
	}
	return key.Address(), nil
}

// Sign signs a 32-byte digest with the external key at account/index.
func (w *Wallet) Sign(account, index uint32, digest []byte) ([]byte, error) {
	key, err := w.master.Derive(ExternalPath(account, index))
	if err != nil {
		return nil, err
	}
	signer, err := key.Signer()
	if err != nil {
		return nil, err
	}
	defer signer.Zero()
	return signer.Sign(digest)
}

// NewExternalAddress derives the next unused receiving address for the
// account and records it in the keystore metadata, which also advances
// the external chain's next index.
func (w *Wallet) NewExternalAddress(account uint32, label string) (types.Address, error) {
	index, err := w.ks.NextIndex(w.Name, ChangeExternal)
	if err != nil {
		return types.Address{}, err
	}
	addr, err := w.Address(account, index)
	if err != nil {
		return types.Address{}, err
	}
	entry := AccountEntry{
		Index:   index,
		Change:  ChangeExternal,
		Label:   label,
		Address: addr,
	}
	if err := w.ks.RecordAccount(w.Name, entry); err != nil {
		return types.Address{}, err
	}
	return addr, nil
}

// Addresses returns all addresses recorded in the keystore metadata.
func (w *Wallet) Addresses() ([]types.Address, error) {
	entries, err := w.ks.ListAccounts(w.Name)
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
