package ordercode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Format(t *testing.T) {
	code, err := Encode(1)
	require.NoError(t, err)

	assert.Len(t, code, 11, "9 symbols plus 2 dashes")
	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.Len(t, p, 3)
		for _, c := range p {
			assert.Contains(t, alphabet, string(c))
		}
	}
}

func TestEncode_RejectsOutOfRange(t *testing.T) {
	for _, id := range []int64{0, -1, maxID + 1} {
		_, err := Encode(id)
		assert.ErrorIs(t, err, ErrIDRange, "id %d", id)
	}
}

func TestEncode_AcceptsBounds(t *testing.T) {
	for _, id := range []int64{1, maxID} {
		code, err := Encode(id)
		require.NoError(t, err)

		back, err := Decode(code)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
}

func TestDecode_NormalizesInput(t *testing.T) {
	code, err := Encode(123456)
	require.NoError(t, err)

	// Lowercase and dash-free forms decode to the same id.
	for _, variant := range []string{
		strings.ToLower(code),
		strings.ReplaceAll(code, "-", ""),
	} {
		got, err := Decode(variant)
		require.NoError(t, err, "variant %q", variant)
		assert.Equal(t, int64(123456), got)
	}
}

func TestDecode_RejectsForeignSymbols(t *testing.T) {
	// The alphabet deliberately omits look-alikes: 0/O, 1/I/L, A, B, E, S, U, Y.
	for _, code := range []string{"CCC-CCC-CCO", "CCC-CCC-CC1", "ABC-DEF-GHI", "", "CC-CCC-CCCC!"} {
		_, err := Decode(code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestRoundTrip_Bijective(t *testing.T) {
	// Dense low range plus a stride through the rest of the space. Codes are
	// collected to prove distinctness, not just round-trip identity.
	seen := make(map[string]int64, 300_000)

	check := func(id int64) {
		code, err := Encode(id)
		require.NoError(t, err)

		if prev, dup := seen[code]; dup {
			t.Fatalf("code %s produced by both %d and %d", code, prev, id)
		}
		seen[code] = id

		back, err := Decode(code)
		require.NoError(t, err)
		require.Equal(t, id, back)
	}

	for id := int64(1); id <= 200_000; id++ {
		check(id)
	}
	for id := int64(200_001); id <= 10_000_000; id += 97 {
		check(id)
	}
}
