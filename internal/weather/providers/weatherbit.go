package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// WeatherbitProvider implements the weather.Provider interface for Weatherbit current conditions.
type WeatherbitProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewWeatherbitProvider(httpCfg HTTPClientConfig, apiKey string) *WeatherbitProvider {
	return &WeatherbitProvider{
		name:    Weatherbit,
		apiKey:  apiKey,
		baseURL: "https://api.weatherbit.io/v2.0/current",
		httpCfg: httpCfg,
		circuit: newCircuit("weatherbit", httpCfg),
		now:     time.Now,
	}
}

// WithBaseURL overrides the endpoint.
func (p *WeatherbitProvider) WithBaseURL(u string) *WeatherbitProvider {
	if u != "" {
		p.baseURL = u
	}
	return p
}

func (p *WeatherbitProvider) Name() string {
	return p.name
}

func (p *WeatherbitProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, failure.New(failure.Config, p.name, errMissingKey)
	}

	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("key", p.apiKey)

	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	obs, err := requireObject(p.name, doc.Path("data").Index(0), "data[0]")
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, obs, "temp")
	if err != nil {
		return weather.Reading{}, err
	}

	observed := unixTime(obs, "ts")

	// vis is in kilometres, precip and snow in mm/h
	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(obs, "app_temp"),
		Pressure:    number(obs, "pres"),
		Humidity:    number(obs, "rh"),
		SeaLevel:    number(obs, "slp"),
		GroundLevel: number(obs, "pres"),
		Visibility:  scaled(number(obs, "vis"), 1000),
		WindSpeed:   number(obs, "wind_spd"),
		WindDeg:     number(obs, "wind_dir"),
		WindGust:    number(obs, "gust"),
		CloudsAll:   number(obs, "clouds"),
		Rain1h:      number(obs, "precip"),
		Snow1h:      number(obs, "snow"),
		ObservedAt:  observed,
		Sunrise:     clockOn(obs, "sunrise", observed),
		Sunset:      clockOn(obs, "sunset", observed),
		Condition:   mapWeatherbitCondition(intOf(number(obs, "weather.code"))),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      subDocument(body, body, "data", "0"),
		Measurements: m,
	}, nil
}

// clockOn combines an "HH:MM" UTC field with the date of day.
func clockOn(c *gabs.Container, path string, day *time.Time) *time.Time {
	s := text(c, path)
	if s == "" || day == nil {
		return nil
	}
	clock, err := time.Parse("15:04", s)
	if err != nil {
		return nil
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
	return &t
}
