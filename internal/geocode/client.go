// Package geocode resolves postal addresses to coordinates using the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultURL = "https://maps.googleapis.com/maps/api/geocode/json"

var (
	// ErrNoResults is returned when the provider knows no location for the address.
	ErrNoResults = errors.New("no geocoding results")
	// ErrQuotaExceeded is returned when the provider rejects the request for rate or quota reasons.
	ErrQuotaExceeded = errors.New("geocoding quota exceeded")
)

// Result is a geocoded location.
type Result struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Address  string  `json:"address"`  // formatted by the provider
	Accuracy string  `json:"accuracy"` // e.g. ROOFTOP, APPROXIMATE
	Quality  string  `json:"quality"`  // first result type, e.g. street_address
}

// Precise reports whether the result pinpoints a building rather than an area.
func (r *Result) Precise() bool {
	if r.Accuracy != "ROOFTOP" {
		return false
	}
	switch r.Quality {
	case "premise", "subpremise", "street_address":
		return true
	}
	return false
}

// Options configures a Client.
type Options struct {
	Key     string
	URL     string        // defaults to the Google endpoint
	Rate    float64       // requests per second; <= 0 means unlimited
	Timeout time.Duration // per request; defaults to 10s
}

// Client calls the geocoding API, limited to a fixed request rate.
type Client struct {
	httpClient *http.Client
	key        string
	limiter    *rate.Limiter

	// Overridable for testing.
	baseURL string
}

// NewClient creates a geocoding client.
func NewClient(opts Options) (*Client, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("geocoder API key is required")
	}
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		key:        opts.Key,
		limiter:    limiter,
		baseURL:    opts.URL,
	}, nil
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string   `json:"formatted_address"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address. It waits for the rate limiter first, so a
// cancelled context aborts without calling the provider.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	params := url.Values{
		"address": {address},
		"key":     {c.key},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = fmt.Errorf("%w (also failed to close body: %v)", err, closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch result.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, fmt.Errorf("%s: %w", address, ErrNoResults)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return nil, ErrQuotaExceeded
	default:
		return nil, fmt.Errorf("geocoder status %s: %s", result.Status, result.ErrorMessage)
	}

	if len(result.Results) == 0 {
		return nil, fmt.Errorf("%s: %w", address, ErrNoResults)
	}

	first := result.Results[0]
	out := &Result{
		Lat:      first.Geometry.Location.Lat,
		Lng:      first.Geometry.Location.Lng,
		Address:  first.FormattedAddress,
		Accuracy: first.Geometry.LocationType,
	}
	if len(first.Types) > 0 {
		out.Quality = first.Types[0]
	}
	return out, nil
}
