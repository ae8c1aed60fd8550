package geocode

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim queries the OpenStreetMap search API.
type Nominatim struct {
	client *resty.Client
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatim creates a Nominatim client. The usage policy requires an identifying User-Agent.
func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "stopweather/1.0"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Nominatim{client: client}
}

func (n *Nominatim) Name() string { return "nominatim" }

// Query is the free-form search text for a stop: "<town>, <stop name>".
// Commas inside the stop name are replaced so they do not split the query.
func Query(loc weather.Location) string {
	return loc.Town + ", " + strings.ReplaceAll(loc.StopName, ",", ".")
}

func (n *Nominatim) Geocode(ctx context.Context, loc weather.Location) (float64, float64, bool, error) {
	var places []nominatimPlace
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      Query(loc),
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&places).
		Get("/search")
	if err != nil {
		return 0, 0, false, failure.New(failure.Network, "nominatim search", err)
	}
	if resp.IsError() {
		return 0, 0, false, failure.Newf(failure.Network, "nominatim search", "unexpected status %d", resp.StatusCode())
	}
	if len(places) == 0 {
		return 0, 0, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, false, failure.New(failure.Decode, "nominatim lat", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, false, failure.New(failure.Decode, "nominatim lon", err)
	}
	// 0,0 would read back as "missing"
	if lat == 0 && lon == 0 {
		return 0, 0, false, nil
	}
	return lat, lon, true, nil
}
