// Package crypto provides the hashing and signing primitives the Umbra
// wallet engine relies on. Zero-knowledge proof construction is not
// implemented here; it is delegated to an external proving engine
// behind the wallet.CryptoProvider interface.
package crypto

import (
	"encoding/binary"

	"github.com/umbra-network/umbra-wallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// OutpointID derives the local record identity for a UTXO:
// BLAKE3(creatingTxID || bigEndian(outputIndex)).
func OutpointID(op types.Outpoint) types.Hash {
	var buf [types.HashSize + 4]byte
	copy(buf[:types.HashSize], op.TxID[:])
	binary.BigEndian.PutUint32(buf[types.HashSize:], op.Index)
	return Hash(buf[:])
}

// AddressFromPubKey derives a wallet address from a compressed public
// key: Address = BLAKE3(compressed_pubkey).
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:])
	return addr
}
