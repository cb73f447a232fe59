package common

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestBigInt(t *testing.T) {
	var v BigInt

	textRef := []byte("11111111111111111111")
	err := v.UnmarshalText(textRef)
	require.NoError(t, err)
	textRoundTrip, err := v.MarshalText()
	require.NoError(t, err)
	require.Equal(t, textRef, textRoundTrip)

	jsonRef := []byte("\"-22222222222222222222\"")
	err = json.Unmarshal(jsonRef, &v)
	require.NoError(t, err)
	jsonRoundTrip, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, jsonRef, jsonRoundTrip)

	stringRef := "33333333333333333333"
	err = v.Int.UnmarshalText([]byte(stringRef))
	require.NoError(t, err)
	stringRoundTrip := fmt.Sprintf("%v", v)
	require.Equal(t, stringRef, stringRoundTrip)
}

func TestBigIntCBOR(t *testing.T) {
	v := NewBigInt(-105)
	raw, err := cbor.Marshal(v)
	require.NoError(t, err)

	var decoded BigInt
	require.NoError(t, cbor.Unmarshal(raw, &decoded))
	require.Equal(t, "-105", decoded.String())
}

func TestBigIntNumeric(t *testing.T) {
	n, err := NewBigInt(-42).NumericValue()
	require.NoError(t, err)
	require.True(t, n.Valid)
	require.Equal(t, int32(0), n.Exp)

	var v BigInt
	require.NoError(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(17), Exp: 2, Valid: true}))
	require.Equal(t, "1700", v.String())

	require.NoError(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(1200), Exp: -2, Valid: true}))
	require.Equal(t, "12", v.String())

	require.Error(t, v.ScanNumeric(pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}))
	require.Error(t, v.ScanNumeric(pgtype.Numeric{}))
}

func TestBigIntFromInt(t *testing.T) {
	src := big.NewInt(7)
	v := BigIntFromInt(src)
	src.SetInt64(8)
	require.Equal(t, "7", v.String())
	require.Equal(t, "0", BigIntFromInt(nil).String())
}
