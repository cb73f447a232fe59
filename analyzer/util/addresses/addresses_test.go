package addresses

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

// Well-known development account "Alice".
const (
	alicePubkey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	aliceSS58   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

func TestEncodeSS58(t *testing.T) {
	pubkey, err := hex.DecodeString(alicePubkey)
	require.NoError(t, err)

	addr, err := EncodeSS58(42, pubkey)
	require.NoError(t, err)
	require.Equal(t, aliceSS58, addr)

	_, err = EncodeSS58(42, pubkey[:31])
	require.Error(t, err)
	_, err = EncodeSS58(1<<14, pubkey)
	require.Error(t, err)
}

func TestDecodeSS58(t *testing.T) {
	prefix, pubkey, err := DecodeSS58(aliceSS58)
	require.NoError(t, err)
	require.Equal(t, uint16(42), prefix)
	require.Equal(t, alicePubkey, hex.EncodeToString(pubkey))

	// Flip the last character to break the checksum.
	broken := aliceSS58[:len(aliceSS58)-1] + "Z"
	_, _, err = DecodeSS58(broken)
	require.Error(t, err)

	_, _, err = DecodeSS58("0OIl")
	require.Error(t, err, "invalid base58 alphabet")
}

func TestSS58RoundTripTwoBytePrefix(t *testing.T) {
	pubkey, err := hex.DecodeString(alicePubkey)
	require.NoError(t, err)
	for _, prefix := range []uint16{0, 2, 63, 64, 255, 1284, 16383} {
		addr, err := EncodeSS58(prefix, pubkey)
		require.NoError(t, err)
		gotPrefix, gotPubkey, err := DecodeSS58(addr)
		require.NoError(t, err)
		require.Equal(t, prefix, gotPrefix)
		require.Equal(t, pubkey, gotPubkey)
	}
}

func TestHashedMapper(t *testing.T) {
	m := HashedMapper{Prefix: 42}
	evm := "0x6be02d1d3665660d22ff9624b7be0551ee1ac91b"

	addr, err := m.ToNative(evm)
	require.NoError(t, err)

	// Case of the hex digits does not matter.
	addr2, err := m.ToNative("0x6BE02D1D3665660D22FF9624B7BE0551EE1AC91B")
	require.NoError(t, err)
	require.Equal(t, addr, addr2)

	raw, err := hex.DecodeString(evm[2:])
	require.NoError(t, err)
	expected := blake2b.Sum256(append([]byte("evm:"), raw...))
	prefix, pubkey, err := DecodeSS58(addr)
	require.NoError(t, err)
	require.Equal(t, uint16(42), prefix)
	require.Equal(t, expected[:], pubkey)

	other, err := HashedMapper{Prefix: 0}.ToNative(evm)
	require.NoError(t, err)
	require.NotEqual(t, addr, other)

	_, err = m.ToNative("6be02d1d3665660d22ff9624b7be0551ee1ac91b")
	require.Error(t, err)
	_, err = m.ToNative("0x1234")
	require.Error(t, err)
}

func TestIsEthAddress(t *testing.T) {
	require.True(t, IsEthAddress("0x6be02d1d3665660d22ff9624b7be0551ee1ac91b"))
	require.False(t, IsEthAddress(aliceSS58))
	require.False(t, IsEthAddress("0x"))
}
