package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/jackc/pgx/v5/pgtype"
)

// Arbitrary-precision signed integer. Wrapper around big.Int that
// serializes as a decimal string in JSON, CBOR and PostgreSQL NUMERIC.
type BigInt struct {
	big.Int
}

func NewBigInt(v int64) BigInt {
	return BigInt{*big.NewInt(v)}
}

// BigIntFromInt copies `v` into a new BigInt. A nil `v` yields zero.
func BigIntFromInt(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.Int.Set(v)
	}
	return b
}

func (b BigInt) String() string {
	return b.Int.String()
}

// ToBigInt returns a copy of the value as a *big.Int.
func (b BigInt) ToBigInt() *big.Int {
	return new(big.Int).Set(&b.Int)
}

func (b BigInt) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *BigInt) UnmarshalText(text []byte) error {
	return b.Int.UnmarshalText(text)
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b *BigInt) UnmarshalJSON(text []byte) error {
	v := strings.Trim(string(text), "\"")
	return b.Int.UnmarshalJSON([]byte(v))
}

func (b BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(b.String())
}

func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, ok := b.Int.SetString(s, 10); !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	return nil
}

// NumericValue implements pgtype.NumericValuer.
func (b BigInt) NumericValue() (pgtype.Numeric, error) {
	return pgtype.Numeric{Int: new(big.Int).Set(&b.Int), Exp: 0, Valid: true}, nil
}

// ScanNumeric implements pgtype.NumericScanner.
func (b *BigInt) ScanNumeric(n pgtype.Numeric) error {
	if !n.Valid {
		return fmt.Errorf("NULL values can't be decoded. Scan into a **BigInt to handle NULLs")
	}
	bigInt, err := numericToBigInt(n)
	if err != nil {
		return err
	}
	*b = bigInt
	return nil
}

// numericToBigInt converts a pgtype.Numeric to a BigInt, refusing values
// with a fractional part.
func numericToBigInt(n pgtype.Numeric) (BigInt, error) {
	if n.Int == nil {
		return BigInt{}, nil
	}
	if n.Exp == 0 {
		return BigInt{Int: *new(big.Int).Set(n.Int)}, nil
	}

	big10 := big.NewInt(10)
	bi := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		mul := new(big.Int).Exp(big10, big.NewInt(int64(n.Exp)), nil)
		bi.Mul(bi, mul)
		return BigInt{Int: *bi}, nil
	}

	div := new(big.Int).Exp(big10, big.NewInt(int64(-n.Exp)), nil)
	remainder := &big.Int{}
	bi.QuoRem(bi, div, remainder)
	if remainder.Sign() != 0 {
		return BigInt{}, fmt.Errorf("cannot convert %v to integer", n)
	}
	return BigInt{Int: *bi}, nil
}
