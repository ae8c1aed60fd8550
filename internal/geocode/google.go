package geocode

import (
	"context"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/stopweather/internal/common"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// the geocoder package keeps its key in a package variable
var googleMu sync.Mutex

// Google resolves stops through the Google Geocoding API.
type Google struct {
	apiKey string
}

// NewGoogle returns a Config failure when apiKey is empty.
func NewGoogle(apiKey string) (*Google, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, failure.Newf(failure.Config, "google geocoder", "missing api key")
	}
	return &Google{apiKey: apiKey}, nil
}

func (g *Google) Name() string { return "google" }

// Address maps a stop to the fields the Google geocoder understands.
func Address(loc weather.Location) geocoder.Address {
	return geocoder.Address{
		Street:   strings.ReplaceAll(loc.StopName, ",", "."),
		District: loc.TownPart,
		City:     loc.Town,
		County:   loc.Region,
		Country:  loc.State,
	}
}

// Geocode ignores ctx cancellation once the request has started; the geocoder
// package does not take a context.
func (g *Google) Geocode(ctx context.Context, loc weather.Location) (float64, float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, false, err
	}

	googleMu.Lock()
	geocoder.ApiKey = g.apiKey
	res, err := geocoder.Geocoding(Address(loc))
	googleMu.Unlock()

	if err != nil {
		if common.HasAny(err.Error(), "zero_results", "empty") {
			return 0, 0, false, nil
		}
		return 0, 0, false, failure.New(failure.Network, "google geocode", err)
	}
	if res.Latitude == 0 && res.Longitude == 0 {
		return 0, 0, false, nil
	}
	return res.Latitude, res.Longitude, true, nil
}
