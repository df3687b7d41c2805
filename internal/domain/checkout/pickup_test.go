package checkout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPickupPayload() map[string]any {
	return map[string]any{
		"point_id":   "LKR-0042",
		"carrier":    "sameday",
		"name":       "Easybox Unirii",
		"address":    "Bd. Unirii 1",
		"city":       "Bucuresti",
		"country_id": float64(1),
		"lat":        44.42,
		"lng":        26.10,
	}
}

func TestParsePickupPayload_Valid(t *testing.T) {
	p, err := ParsePickupPayload(validPickupPayload())
	require.NoError(t, err)

	assert.Equal(t, "LKR-0042", p.PointID)
	assert.Equal(t, "sameday", p.Carrier)
	assert.Equal(t, int64(1), p.CountryID)
	assert.InDelta(t, 44.42, p.Lat, 1e-9)
	assert.InDelta(t, 26.10, p.Lng, 1e-9)
}

func TestParsePickupPayload_MinimalFields(t *testing.T) {
	p, err := ParsePickupPayload(map[string]any{
		"point_id":   "P1",
		"carrier":    "dpd",
		"country_id": float64(2),
	})
	require.NoError(t, err)
	assert.Empty(t, p.Name)
	assert.Zero(t, p.Lat)
}

func TestParsePickupPayload_RejectsUnknownField(t *testing.T) {
	raw := validPickupPayload()
	raw["metadata"] = map[string]any{"injected": true}

	_, err := ParsePickupPayload(raw)
	require.ErrorIs(t, err, ErrPickupPayload)
	assert.Contains(t, err.Error(), "metadata")
}

func TestParsePickupPayload_Empty(t *testing.T) {
	_, err := ParsePickupPayload(nil)
	require.ErrorIs(t, err, ErrPickupPayload)

	_, err = ParsePickupPayload(map[string]any{})
	require.ErrorIs(t, err, ErrPickupPayload)
}

func TestParsePickupPayload_RequiredFields(t *testing.T) {
	for _, field := range []string{"point_id", "carrier", "country_id"} {
		raw := validPickupPayload()
		delete(raw, field)

		_, err := ParsePickupPayload(raw)
		require.ErrorIs(t, err, ErrPickupPayload, "missing %s", field)
		assert.Contains(t, err.Error(), field)
	}
}

func TestParsePickupPayload_EmptyRequiredString(t *testing.T) {
	raw := validPickupPayload()
	raw["point_id"] = ""

	_, err := ParsePickupPayload(raw)
	require.ErrorIs(t, err, ErrPickupPayload)
}

func TestParsePickupPayload_TypeChecks(t *testing.T) {
	tests := []struct {
		field string
		value any
	}{
		{"point_id", 123},
		{"carrier", true},
		{"country_id", "1"},
		{"lat", "44.42"},
	}
	for _, tt := range tests {
		raw := validPickupPayload()
		raw[tt.field] = tt.value

		_, err := ParsePickupPayload(raw)
		require.ErrorIs(t, err, ErrPickupPayload, "field %s with %T", tt.field, tt.value)
	}
}

func TestParsePickupPayload_LengthLimits(t *testing.T) {
	raw := validPickupPayload()
	raw["point_id"] = strings.Repeat("x", 65)

	_, err := ParsePickupPayload(raw)
	require.ErrorIs(t, err, ErrPickupPayload)
	assert.Contains(t, err.Error(), "point_id")
}

func TestParsePickupPayload_CountryIDMustBePositiveInteger(t *testing.T) {
	for _, v := range []float64{0, -3, 1.5} {
		raw := validPickupPayload()
		raw["country_id"] = v

		_, err := ParsePickupPayload(raw)
		require.ErrorIs(t, err, ErrPickupPayload, "country_id %v", v)
	}
}

func TestParsePickupPayload_CoordinateRanges(t *testing.T) {
	for _, tt := range []struct {
		field string
		value float64
	}{
		{"lat", 90.01},
		{"lat", -90.01},
		{"lng", 180.01},
		{"lng", -180.01},
	} {
		raw := validPickupPayload()
		raw[tt.field] = tt.value

		_, err := ParsePickupPayload(raw)
		require.ErrorIs(t, err, ErrPickupPayload, "%s = %v", tt.field, tt.value)
	}
}
