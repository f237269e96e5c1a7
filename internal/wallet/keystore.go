package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// walletFile is the on-disk JSON document for one wallet: the sealed
// seed plus metadata for every address handed out so far.
type walletFile struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Seed      *sealedSeed    `json:"seed"`
	Accounts  []AccountEntry `json:"accounts"`
	// NextIndex is the first unused derivation index per chain, keyed
	// by the BIP-44 change field (0 external, 1 internal).
	NextIndex [2]uint32 `json:"next_index"`
}

// AccountEntry records one derived address. The address is held
// natively and renders as bech32m in the JSON document.
type AccountEntry struct {
	Index   uint32        `json:"index"`
	Change  uint32        `json:"change"`
	Label   string        `json:"label,omitempty"`
	Address types.Address `json:"address"`
}

// Keystore manages encrypted wallet files in one directory.
type Keystore struct {
	dir string
}

// NewKeystore opens the keystore directory, creating it if needed.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.dir, name+".wallet")
}

// Create seals the seed under the password and writes a fresh wallet
// file. Fails if the name is already taken.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	sealed, err := sealSeed(seed, password, params)
	if err != nil {
		return fmt.Errorf("seal seed: %w", err)
	}

	return ks.writeFile(path, &walletFile{
		Version:   1,
		CreatedAt: time.Now().UTC(),
		Seed:      sealed,
		Accounts:  []AccountEntry{},
	})
}

// Load opens the named wallet file and returns the decrypted seed.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	wf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := wf.Seed.open(password)
	if err != nil {
		return nil, fmt.Errorf("wallet %q: %w", name, err)
	}
	return seed, nil
}

// NextIndex returns the first unused derivation index on the given
// chain (ChangeExternal or ChangeInternal).
func (ks *Keystore) NextIndex(name string, change uint32) (uint32, error) {
	if change > ChangeInternal {
		return 0, fmt.Errorf("invalid change field %d", change)
	}
	wf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return 0, err
	}
	return wf.NextIndex[change], nil
}

// RecordAccount appends the entry to the wallet metadata and advances
// the chain's next index past it, in one write. Re-recording the same
// address at the same derivation path is a no-op; a different address
// at an occupied path is an error.
func (ks *Keystore) RecordAccount(name string, entry AccountEntry) error {
	if entry.Change > ChangeInternal {
		return fmt.Errorf("invalid change field %d", entry.Change)
	}
	path := ks.walletPath(name)
	wf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	for _, existing := range wf.Accounts {
		if existing.Change == entry.Change && existing.Index == entry.Index {
			if existing.Address == entry.Address {
				return nil
			}
			return fmt.Errorf("account at change=%d index=%d already recorded with a different address", entry.Change, entry.Index)
		}
		if existing.Address == entry.Address {
			return nil
		}
	}

	wf.Accounts = append(wf.Accounts, entry)
	if next := entry.Index + 1; next > wf.NextIndex[entry.Change] {
		wf.NextIndex[entry.Change] = next
	}
	return ks.writeFile(path, wf)
}

// ListAccounts returns the recorded account entries for a wallet.
func (ks *Keystore) ListAccounts(name string) ([]AccountEntry, error) {
	wf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	return wf.Accounts, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

// writeFile replaces the wallet file via a temp file and rename so a
// crash mid-write cannot truncate the sealed seed.
func (ks *Keystore) writeFile(path string, wf *walletFile) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*walletFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if wf.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet version: %d", wf.Version)
	}
	if wf.Seed == nil {
		return nil, fmt.Errorf("wallet file has no sealed seed")
	}
	return &wf, nil
}
