package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrPickupPayload indicates the pickup-point payload failed structural
// validation.
var ErrPickupPayload = errors.New("invalid pickup point payload")

// PickupPoint is a courier-provided delivery destination: a locker or counter
// identified by a point id rather than a street address.
type PickupPoint struct {
	PointID   string
	Carrier   string
	Name      string
	Address   string
	City      string
	CountryID int64
	Lat       float64
	Lng       float64
}

// pickupFields whitelists the accepted payload keys. Anything else is
// rejected outright so nested or arbitrary data can never reach storage.
var pickupFields = map[string]struct{}{
	"point_id":   {},
	"carrier":    {},
	"name":       {},
	"address":    {},
	"city":       {},
	"country_id": {},
	"lat":        {},
	"lng":        {},
}

// ParsePickupPayload converts a raw JSON object into a PickupPoint. Every
// field is checked against a whitelist of names, types, lengths, and ranges.
func ParsePickupPayload(raw map[string]any) (*PickupPoint, error) {
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrPickupPayload, "payload is empty")
	}
	for k := range raw {
		if _, ok := pickupFields[k]; !ok {
			return nil, errors.Wrapf(ErrPickupPayload, "unknown field %q", k)
		}
	}

	p := &PickupPoint{}
	var err error

	if p.PointID, err = pickupString(raw, "point_id", true, 64); err != nil {
		return nil, err
	}
	if p.Carrier, err = pickupString(raw, "carrier", true, 40); err != nil {
		return nil, err
	}
	if p.Name, err = pickupString(raw, "name", false, 120); err != nil {
		return nil, err
	}
	if p.Address, err = pickupString(raw, "address", false, 200); err != nil {
		return nil, err
	}
	if p.City, err = pickupString(raw, "city", false, 80); err != nil {
		return nil, err
	}

	countryID, err := pickupNumber(raw, "country_id", true)
	if err != nil {
		return nil, err
	}
	if countryID != float64(int64(countryID)) || countryID <= 0 {
		return nil, errors.Wrap(ErrPickupPayload, "country_id must be a positive integer")
	}
	p.CountryID = int64(countryID)

	if p.Lat, err = pickupNumber(raw, "lat", false); err != nil {
		return nil, err
	}
	if p.Lng, err = pickupNumber(raw, "lng", false); err != nil {
		return nil, err
	}
	if p.Lat < -90 || p.Lat > 90 {
		return nil, errors.Wrap(ErrPickupPayload, "lat out of range")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return nil, errors.Wrap(ErrPickupPayload, "lng out of range")
	}

	return p, nil
}

func pickupString(raw map[string]any, key string, required bool, maxLen int) (string, error) {
	v, ok := raw[key]
	if !ok {
		if required {
			return "", errors.Wrapf(ErrPickupPayload, "missing field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Wrapf(ErrPickupPayload, "field %q must be a string", key)
	}
	if required && s == "" {
		return "", errors.Wrapf(ErrPickupPayload, "field %q must not be empty", key)
	}
	if len(s) > maxLen {
		return "", errors.Wrapf(ErrPickupPayload, "field %q exceeds %d characters", key, maxLen)
	}
	return s, nil
}

func pickupNumber(raw map[string]any, key string, required bool) (float64, error) {
	v, ok := raw[key]
	if !ok {
		if required {
			return 0, errors.Wrapf(ErrPickupPayload, "missing field %q", key)
		}
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, errors.Wrap(ErrPickupPayload, fmt.Sprintf("field %q must be a number", key))
	}
}
