// Package ordercode converts numeric order identifiers into human-facing
// codes and back. The mapping is a bijection: every id encodes to exactly one
// code and decoding always recovers the original id.
//
// The alphabet contains no vowels, so sequential ids cannot spell accidental
// words, and no visually ambiguous characters (I, L, O, B, S, U and friends
// are absent). Codes are fixed width and chunked as XXX-XXX-XXX.
package ordercode

import (
	"strings"

	"github.com/go-faster/errors"
)

// alphabet is the restricted 17-character set used for code digits.
const alphabet = "CDFGHJKMNPQRTVWXZ"

const (
	base      = int64(len(alphabet))
	codeWidth = 9
	chunkSize = 3
)

// maxID is the largest identifier representable in codeWidth digits
// (base^codeWidth - 1).
var maxID = func() int64 {
	m := int64(1)
	for range codeWidth {
		m *= base
	}
	return m - 1
}()

// decodeTable maps an alphabet byte to its digit value, -1 for invalid bytes.
var decodeTable = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := range len(alphabet) {
		t[alphabet[i]] = int8(i)
	}
	return t
}()

// Decode errors.
var (
	ErrInvalidCode = errors.New("invalid order code")
	ErrIDRange     = errors.New("order id out of encodable range")
)

// Encode converts an order id into its display code. It returns ErrIDRange
// for non-positive ids or ids beyond the 9-digit code space.
func Encode(id int64) (string, error) {
	if id <= 0 || id > maxID {
		return "", errors.Wrapf(ErrIDRange, "id %d", id)
	}

	var digits [codeWidth]byte
	n := id
	for i := codeWidth - 1; i >= 0; i-- {
		digits[i] = alphabet[n%base]
		n /= base
	}

	var b strings.Builder
	b.Grow(codeWidth + codeWidth/chunkSize - 1)
	for i := 0; i < codeWidth; i += chunkSize {
		if i > 0 {
			b.WriteByte('-')
		}
		b.Write(digits[i : i+chunkSize])
	}
	return b.String(), nil
}

// Decode converts a display code back into the order id it was generated
// from. Dashes are optional and letter case is ignored. It returns
// ErrInvalidCode for malformed input.
func Decode(code string) (int64, error) {
	compact := strings.ToUpper(strings.ReplaceAll(code, "-", ""))
	if len(compact) != codeWidth {
		return 0, errors.Wrapf(ErrInvalidCode, "%q", code)
	}

	var id int64
	for i := range len(compact) {
		d := decodeTable[compact[i]]
		if d < 0 {
			return 0, errors.Wrapf(ErrInvalidCode, "%q", code)
		}
		id = id*base + int64(d)
	}
	if id <= 0 {
		return 0, errors.Wrapf(ErrInvalidCode, "%q", code)
	}
	return id, nil
}
