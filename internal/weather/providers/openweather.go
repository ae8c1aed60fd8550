package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenWeatherProvider(httpCfg HTTPClientConfig, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    OpenWeatherMap,
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: httpCfg,
		circuit: newCircuit("openweather", httpCfg),
		now:     time.Now,
	}
}

// WithBaseURL overrides the endpoint, e.g. for the config's request_url.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	if u != "" {
		p.baseURL = u
	}
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, failure.New(failure.Config, p.name, errMissingKey)
	}

	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")

	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, doc, "main.temp")
	if err != nil {
		return weather.Reading{}, err
	}

	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(doc, "main.feels_like"),
		TempMin:     number(doc, "main.temp_min"),
		TempMax:     number(doc, "main.temp_max"),
		Pressure:    number(doc, "main.pressure"),
		Humidity:    number(doc, "main.humidity"),
		SeaLevel:    number(doc, "main.sea_level"),
		GroundLevel: number(doc, "main.grnd_level"),
		Visibility:  number(doc, "visibility"),
		WindSpeed:   number(doc, "wind.speed"),
		WindDeg:     number(doc, "wind.deg"),
		WindGust:    number(doc, "wind.gust"),
		CloudsAll:   number(doc, "clouds.all"),
		Rain1h:      number(doc, "rain.1h"),
		Rain3h:      number(doc, "rain.3h"),
		Snow1h:      number(doc, "snow.1h"),
		Snow3h:      number(doc, "snow.3h"),
		ObservedAt:  unixTime(doc, "dt"),
		Sunrise:     unixTime(doc, "sys.sunrise"),
		Sunset:      unixTime(doc, "sys.sunset"),
		Timezone:    integer(doc, "timezone"),
		Condition:   mapOpenWeatherCondition(text(doc.Path("weather").Index(0), "main")),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      body,
		Measurements: m,
	}, nil
}
