// Package geoip looks up the country for an IP address against an external
// HTTP geolocation service. Lookups are best-effort: callers treat any error
// as "unknown" and fall through to their next resolution step.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
)

// ErrUnknown is returned when the service cannot place the IP.
var ErrUnknown = errors.New("country unknown for ip")

// Lookup resolves an IP address to an ISO country code.
type Lookup interface {
	CountryForIP(ctx context.Context, ip string) (string, error)
}

// Client is an HTTP Lookup against an ip-api style endpoint that answers
// GET {base}/{ip} with {"status":"success","countryCode":"RO"}.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Lookup = (*Client)(nil)

// NewClient creates a geolocation client. The timeout bounds the entire
// lookup; keep it short so a slow provider never stalls pricing.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
}

// CountryForIP implements Lookup.
func (c *Client) CountryForIP(ctx context.Context, ip string) (string, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrap(err, "build geoip request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "geoip request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("geoip status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "decode geoip response")
	}
	if body.Status != "success" || body.CountryCode == "" {
		return "", ErrUnknown
	}
	return body.CountryCode, nil
}
