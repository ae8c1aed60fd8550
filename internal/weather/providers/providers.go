package providers

import (
	"fmt"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// Provider names as they appear in config files and the WeatherData table.
const (
	OpenWeatherMap = "openweathermap"
	OpenMeteo      = "openmeteo"
	TomorrowIO     = "tomorrowio"
	WeatherStack   = "weatherstack"
	Weatherbit     = "weatherbit"
	AerisWeather   = "aerisweather"
)

// Names lists every supported provider.
var Names = []string{OpenWeatherMap, OpenMeteo, TomorrowIO, WeatherStack, Weatherbit, AerisWeather}

// Known reports whether name is a supported provider.
func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// NeedsKey reports whether the provider requires credentials.
func NeedsKey(name string) bool {
	return name != OpenMeteo
}

// Spec describes one configured provider.
type Spec struct {
	Name         string
	APIKey       string
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// New builds the provider described by spec.
func New(spec Spec, httpCfg HTTPClientConfig) (weather.Provider, error) {
	switch spec.Name {
	case OpenWeatherMap:
		return NewOpenWeatherProvider(httpCfg, spec.APIKey).WithBaseURL(spec.BaseURL), nil
	case OpenMeteo:
		return NewOpenMeteoProvider(httpCfg).WithBaseURL(spec.BaseURL), nil
	case TomorrowIO:
		return NewTomorrowIOProvider(httpCfg, spec.APIKey).WithBaseURL(spec.BaseURL), nil
	case WeatherStack:
		return NewWeatherStackProvider(httpCfg, spec.APIKey).WithBaseURL(spec.BaseURL), nil
	case Weatherbit:
		return NewWeatherbitProvider(httpCfg, spec.APIKey).WithBaseURL(spec.BaseURL), nil
	case AerisWeather:
		return NewAerisWeatherProvider(httpCfg, spec.ClientID, spec.ClientSecret).WithBaseURL(spec.BaseURL), nil
	default:
		return nil, failure.New(failure.Config, "providers", fmt.Errorf("unknown provider %q", spec.Name))
	}
}

// NewAll builds every provider in specs, in order.
func NewAll(specs []Spec, httpCfg HTTPClientConfig) ([]weather.Provider, error) {
	out := make([]weather.Provider, 0, len(specs))
	for _, s := range specs {
		p, err := New(s, httpCfg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
