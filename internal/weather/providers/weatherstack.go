package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// WeatherStackProvider implements the weather.Provider interface for WeatherStack.
type WeatherStackProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewWeatherStackProvider(httpCfg HTTPClientConfig, apiKey string) *WeatherStackProvider {
	return &WeatherStackProvider{
		name:    WeatherStack,
		apiKey:  apiKey,
		baseURL: "http://api.weatherstack.com/current",
		httpCfg: httpCfg,
		circuit: newCircuit("weatherstack", httpCfg),
		now:     time.Now,
	}
}

// WithBaseURL overrides the endpoint.
func (p *WeatherStackProvider) WithBaseURL(u string) *WeatherStackProvider {
	if u != "" {
		p.baseURL = u
	}
	return p
}

func (p *WeatherStackProvider) Name() string {
	return p.name
}

func (p *WeatherStackProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, failure.New(failure.Config, p.name, errMissingKey)
	}

	values := url.Values{}
	values.Set("access_key", p.apiKey)
	values.Set("query", formatCoord(lat)+","+formatCoord(lon))
	values.Set("units", "m")

	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	// WeatherStack answers 200 with {"success": false, "error": {...}} on bad keys or quota.
	if err := apiError(p.name, doc, "error.info", "error.type"); err != nil {
		return weather.Reading{}, err
	}
	current, err := requireObject(p.name, doc.Path("current"), "current")
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, current, "temperature")
	if err != nil {
		return weather.Reading{}, err
	}

	var tz *int64
	if hours := number(doc, "location.utc_offset"); hours != nil {
		s := int64(*hours * 3600)
		tz = &s
	}

	// wind is reported in km/h, visibility in km
	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(current, "feelslike"),
		Pressure:    number(current, "pressure"),
		Humidity:    number(current, "humidity"),
		Visibility:  scaled(number(current, "visibility"), 1000),
		WindSpeed:   scaled(number(current, "wind_speed"), 1/3.6),
		WindDeg:     number(current, "wind_degree"),
		CloudsAll:   number(current, "cloudcover"),
		Rain1h:      number(current, "precip"),
		ObservedAt:  unixTime(doc, "location.localtime_epoch"),
		Timezone:    tz,
		Condition:   mapTextCondition(text(current.Path("weather_descriptions").Index(0), "")),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      subDocument(body, body, "current"),
		Measurements: m,
	}, nil
}
