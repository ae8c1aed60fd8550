package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// TomorrowIOProvider implements the weather.Provider interface for the Tomorrow.io realtime API.
type TomorrowIOProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewTomorrowIOProvider(httpCfg HTTPClientConfig, apiKey string) *TomorrowIOProvider {
	return &TomorrowIOProvider{
		name:    TomorrowIO,
		apiKey:  apiKey,
		baseURL: "https://api.tomorrow.io/v4/weather/realtime",
		httpCfg: httpCfg,
		circuit: newCircuit("tomorrowio", httpCfg),
		now:     time.Now,
	}
}

// WithBaseURL overrides the endpoint.
func (p *TomorrowIOProvider) WithBaseURL(u string) *TomorrowIOProvider {
	if u != "" {
		p.baseURL = u
	}
	return p
}

func (p *TomorrowIOProvider) Name() string {
	return p.name
}

func (p *TomorrowIOProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, failure.New(failure.Config, p.name, errMissingKey)
	}

	values := url.Values{}
	values.Set("location", formatCoord(lat)+","+formatCoord(lon))
	values.Set("apikey", p.apiKey)
	values.Set("units", "metric")

	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	vals, err := requireObject(p.name, doc.Path("data.values"), "data.values")
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, vals, "temperature")
	if err != nil {
		return weather.Reading{}, err
	}

	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(vals, "temperatureApparent"),
		Pressure:    number(vals, "pressureSeaLevel"),
		Humidity:    number(vals, "humidity"),
		SeaLevel:    number(vals, "pressureSeaLevel"),
		GroundLevel: number(vals, "pressureSurfaceLevel"),
		// visibility is in kilometres
		Visibility: scaled(number(vals, "visibility"), 1000),
		WindSpeed:  number(vals, "windSpeed"),
		WindDeg:    number(vals, "windDirection"),
		WindGust:   number(vals, "windGust"),
		CloudsAll:  number(vals, "cloudCover"),
		Rain1h:     number(vals, "rainIntensity"),
		Snow1h:     number(vals, "snowIntensity"),
		ObservedAt: rfc3339Time(doc, "data.time"),
		Condition:  mapTomorrowCondition(intOf(number(vals, "weatherCode"))),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      subDocument(body, body, "data"),
		Measurements: m,
	}, nil
}
