package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rendis/rankgrid/internal/model"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// ErrNotFound is returned when the geocoder has no match for a query.
var ErrNotFound = errors.New("address not found")

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Place is a geocoded address.
type Place struct {
	Center      model.LatLng
	DisplayName string
}

// Geocoder resolves free-form addresses through the OSM Nominatim API.
type Geocoder struct {
	baseURL string
	http    *http.Client
}

// NewGeocoder creates a Geocoder. An empty baseURL uses the public Nominatim endpoint.
func NewGeocoder(baseURL string) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Geocoder{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Geocode returns the best match for address.
func (g *Geocoder) Geocode(ctx context.Context, address string) (Place, error) {
	u := g.baseURL + "?" + url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Place{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "rankgrid/0.1 (local rank grid scanner)")

	resp, err := g.http.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Place{}, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrNotFound, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	return Place{
		Center:      model.LatLng{Lat: lat, Lng: lng},
		DisplayName: results[0].DisplayName,
	}, nil
}
