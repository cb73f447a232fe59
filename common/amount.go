package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount parses a balance as rendered by Substrate JSON codecs: a JSON
// number, a decimal string, or a 0x-prefixed hex string.
func ParseAmount(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("missing amount")
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
	} else {
		var num json.Number
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&num); err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		text = num.String()
	}
	return parseAmountText(text)
}

func parseAmountText(text string) (*big.Int, error) {
	text = strings.TrimSpace(text)
	v := new(big.Int)
	var ok bool
	if hex, isHex := strings.CutPrefix(strings.ToLower(text), "0x"); isHex {
		if hex == "" {
			return new(big.Int), nil
		}
		_, ok = v.SetString(hex, 16)
	} else {
		// Amounts are integers; scientific notation from oversized JSON
		// numbers is rejected here too.
		_, ok = v.SetString(text, 10)
	}
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", text)
	}
	return v, nil
}
