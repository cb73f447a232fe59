// Package addresses converts between the chain's SS58 account addresses and
// the EVM (H160) addresses that act on the same accounts.
package addresses

import (
	"bytes"
	"fmt"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// nearly hungarian notation notes:
// ethAddr -> []byte len-20 slice
// ecAddr -> go-ethereum type binary address
// pubkey -> []byte len-32 account id
// addr -> SS58 string address

const (
	// AccountIDLength is the length of a native account id.
	AccountIDLength = 32

	// Largest prefix representable by the two-byte SS58 format.
	maxPrefix = 1<<14 - 1

	checksumLength = 2
)

var (
	ss58Context = []byte("SS58PRE")

	// Domain separator of Frontier's HashedAddressMapping.
	evmMappingContext = []byte("evm:")
)

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	return []byte{
		byte((prefix&0b1111_1100)>>2) | 0b0100_0000,
		byte(prefix>>8) | byte((prefix&0b11)<<6),
	}
}

func checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	_, _ = h.Write(ss58Context)
	_, _ = h.Write(payload)
	return h.Sum(nil)[:checksumLength]
}

// EncodeSS58 encodes a 32-byte account id as an SS58 address.
func EncodeSS58(prefix uint16, pubkey []byte) (string, error) {
	if prefix > maxPrefix {
		return "", fmt.Errorf("ss58 prefix %d out of range", prefix)
	}
	if len(pubkey) != AccountIDLength {
		return "", fmt.Errorf("account id must be %d bytes, got %d", AccountIDLength, len(pubkey))
	}
	payload := append(encodePrefix(prefix), pubkey...)
	return base58.Encode(append(payload, checksum(payload)...)), nil
}

// DecodeSS58 decodes an SS58 address into its network prefix and account id.
func DecodeSS58(addr string) (uint16, []byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("base58 decode: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil, fmt.Errorf("empty address")
	}

	var prefix uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, nil, fmt.Errorf("truncated address")
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return 0, nil, fmt.Errorf("reserved address prefix byte %#x", raw[0])
	}

	if len(raw) != prefixLen+AccountIDLength+checksumLength {
		return 0, nil, fmt.Errorf("unexpected address length %d", len(raw))
	}
	payload := raw[:prefixLen+AccountIDLength]
	if !bytes.Equal(checksum(payload), raw[prefixLen+AccountIDLength:]) {
		return 0, nil, fmt.Errorf("invalid address checksum")
	}
	return prefix, payload[prefixLen:], nil
}

// FromEthAddress returns the native address that Frontier's HashedAddressMapping
// assigns to a 20-byte EVM address.
func FromEthAddress(prefix uint16, ethAddr []byte) (string, error) {
	if len(ethAddr) != ethCommon.AddressLength {
		return "", fmt.Errorf("evm address must be %d bytes, got %d", ethCommon.AddressLength, len(ethAddr))
	}
	pubkey := blake2b.Sum256(append(append([]byte{}, evmMappingContext...), ethAddr...))
	return EncodeSS58(prefix, pubkey[:])
}

// HashedMapper maps 0x-prefixed hex EVM addresses to native addresses.
type HashedMapper struct {
	Prefix uint16
}

// ToNative returns the native address of `evmAddr`.
func (m HashedMapper) ToNative(evmAddr string) (string, error) {
	if !IsEthAddress(evmAddr) {
		return "", fmt.Errorf("malformed evm address %q", evmAddr)
	}
	ecAddr := ethCommon.HexToAddress(evmAddr)
	return FromEthAddress(m.Prefix, ecAddr.Bytes())
}

// IsEthAddress reports whether `s` is a 0x-prefixed 20-byte hex string.
func IsEthAddress(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "0x") && ethCommon.IsHexAddress(s)
}
