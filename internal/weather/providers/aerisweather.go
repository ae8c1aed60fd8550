package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// AerisWeatherProvider implements the weather.Provider interface for the AerisWeather conditions endpoint.
// It authenticates with a client id and secret instead of a single key.
type AerisWeatherProvider struct {
	name         string
	clientID     string
	clientSecret string
	baseURL      string
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	now          func() time.Time
}

func NewAerisWeatherProvider(httpCfg HTTPClientConfig, clientID, clientSecret string) *AerisWeatherProvider {
	return &AerisWeatherProvider{
		name:         AerisWeather,
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.aerisapi.com/conditions",
		httpCfg:      httpCfg,
		circuit:      newCircuit("aerisweather", httpCfg),
		now:          time.Now,
	}
}

// WithBaseURL overrides the endpoint; the coordinates are appended as a path segment.
func (p *AerisWeatherProvider) WithBaseURL(u string) *AerisWeatherProvider {
	if u != "" {
		p.baseURL = strings.TrimRight(u, "/")
	}
	return p
}

func (p *AerisWeatherProvider) Name() string {
	return p.name
}

func (p *AerisWeatherProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return weather.Reading{}, failure.Newf(failure.Config, p.name, "client id and secret are not configured")
	}

	values := url.Values{}
	values.Set("format", "json")
	values.Set("plimit", "1")
	values.Set("filter", "1min")
	values.Set("client_id", p.clientID)
	values.Set("client_secret", p.clientSecret)

	endpoint := fmt.Sprintf("%s/%s,%s", p.baseURL, formatCoord(lat), formatCoord(lon))
	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, endpoint, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	if err := apiError(p.name, doc, "error.description"); err != nil {
		return weather.Reading{}, err
	}
	place := doc.Path("response").Index(0)
	period, err := requireObject(p.name, place.Path("periods").Index(0), "response[0].periods[0]")
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, period, "tempC")
	if err != nil {
		return weather.Reading{}, err
	}

	description := text(period, "weather")
	if description == "" {
		description = text(period, "weatherPrimary")
	}

	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(period, "feelslikeC"),
		Pressure:    number(period, "pressureMB"),
		Humidity:    number(period, "humidity"),
		SeaLevel:    number(period, "pressureMB"),
		GroundLevel: number(period, "spressureMB"),
		Visibility:  scaled(number(period, "visibilityKM"), 1000),
		WindSpeed:   scaled(number(period, "windSpeedKPH"), 1/3.6),
		WindDeg:     number(period, "windDirDEG"),
		WindGust:    scaled(number(period, "windGustKPH"), 1/3.6),
		CloudsAll:   number(period, "sky"),
		Rain1h:      number(period, "precipMM"),
		// snow depth is reported in centimetres
		Snow1h:     scaled(number(period, "snowCM"), 10),
		ObservedAt: unixTime(period, "timestamp"),
		Timezone:   integer(place, "profile.tzoffset"),
		Condition:  mapTextCondition(description),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      subDocument(body, body, "response", "0"),
		Measurements: m,
	}, nil
}
