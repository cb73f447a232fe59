package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	for _, tc := range []struct {
		raw      string
		expected string
	}{
		{`100`, "100"},
		{`"100"`, "100"},
		{`"0x64"`, "100"},
		{`"0x0000000000000000000000000000000064"`, "100"},
		{`"0x"`, "0"},
		{` 5 `, "5"},
		{`"-7"`, "-7"},
		{`123456789012345678901234567890`, "123456789012345678901234567890"},
	} {
		v, err := ParseAmount(json.RawMessage(tc.raw))
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.expected, v.String(), tc.raw)
	}

	for _, raw := range []string{``, `null`, `"abc"`, `1.5`, `1e3`, `{"x":1}`, `"0xzz"`, `true`} {
		_, err := ParseAmount(json.RawMessage(raw))
		require.Error(t, err, raw)
	}
}
