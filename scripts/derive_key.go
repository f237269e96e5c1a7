// derive_key.go prints the receiving address at a derivation index for
// a recovery phrase stored in a file, without touching the keystore.
// Usage: go run scripts/derive_key.go <phrase-file> [index]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/umbra-network/umbra-wallet/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <phrase-file> [index]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fatal(err)
	}
	index := uint64(0)
	if len(os.Args) > 2 {
		index, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			fatal(fmt.Errorf("bad index %q: %w", os.Args[2], err))
		}
	}

	mnemonic := wallet.NormalizeMnemonic(string(data))
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal(err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		fatal(err)
	}
	path := wallet.ExternalPath(0, uint32(index))
	key, err := master.Derive(path)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("path=%s\n", path)
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKeyBytes()))
	fmt.Printf("address=%s\n", key.Address())
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
