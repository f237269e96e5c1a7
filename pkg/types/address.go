package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an address in bytes.
// Umbra addresses are 256-bit hashes of the viewing public key.
const AddressSize = 32

// Address HRP (human-readable part) constants for bech32m encoding.
const (
	MainnetHRP = "umbra"
	TestnetHRP = "tumbra"
)

// activeHRP is the address HRP used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string {
	return activeHRP
}

// Address represents a 256-bit wallet address.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32m-encoded address (e.g. "umbra1...").
func (a Address) String() string {
	s, err := Bech32mEncode(activeHRP, a[:])
	if err != nil {
		// Fallback to hex if encoding fails (should never happen).
		return activeHRP + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex-encoded address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a bech32m string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32m or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32m or raw hex address string.
// Accepts: bech32m ("umbra1...", "tumbra1...") or raw 64-char hex
// (for configuration and internal use).
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	// Raw hex form.
	if isHex64(s) {
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address: %w", err)
		}
		var a Address
		copy(a[:], decoded)
		return a, nil
	}

	if !strings.Contains(s, "1") {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	_, data, err := Bech32mDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32m address: %w", err)
	}
	if len(data) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
	}
	var a Address
	copy(a[:], data)
	return a, nil
}

// isHex64 returns true if s is exactly 64 hex characters.
func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
