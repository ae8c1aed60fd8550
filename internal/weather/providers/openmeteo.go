package providers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/stopweather/internal/weather"
)

var openMeteoCurrent = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"apparent_temperature",
	"precipitation",
	"rain",
	"snowfall",
	"weather_code",
	"cloud_cover",
	"pressure_msl",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_gusts_10m",
}

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenMeteoProvider(httpCfg HTTPClientConfig) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    OpenMeteo,
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: httpCfg,
		circuit: newCircuit("openmeteo", httpCfg),
		now:     time.Now,
	}
}

// WithBaseURL overrides the endpoint.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	if u != "" {
		p.baseURL = u
	}
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, lat, lon float64) (weather.Reading, error) {
	values := url.Values{}
	values.Set("latitude", formatCoord(lat))
	values.Set("longitude", formatCoord(lon))
	values.Set("current", strings.Join(openMeteoCurrent, ","))
	values.Set("wind_speed_unit", "ms")
	values.Set("timeformat", "unixtime")

	body, err := getJSON(ctx, p.name, p.httpCfg, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.Reading{}, err
	}

	doc, err := parseBody(p.name, body)
	if err != nil {
		return weather.Reading{}, err
	}
	current, err := requireObject(p.name, doc.Path("current"), "current")
	if err != nil {
		return weather.Reading{}, err
	}
	temp, err := requireNumber(p.name, current, "temperature_2m")
	if err != nil {
		return weather.Reading{}, err
	}

	m := weather.Measurements{
		Temperature: &temp,
		FeelsLike:   number(current, "apparent_temperature"),
		Pressure:    number(current, "pressure_msl"),
		Humidity:    number(current, "relative_humidity_2m"),
		SeaLevel:    number(current, "pressure_msl"),
		GroundLevel: number(current, "surface_pressure"),
		WindSpeed:   number(current, "wind_speed_10m"),
		WindDeg:     number(current, "wind_direction_10m"),
		WindGust:    number(current, "wind_gusts_10m"),
		CloudsAll:   number(current, "cloud_cover"),
		Rain1h:      number(current, "rain"),
		// snowfall is reported in centimetres
		Snow1h:     scaled(number(current, "snowfall"), 10),
		ObservedAt: unixTime(current, "time"),
		Timezone:   integer(doc, "utc_offset_seconds"),
		Condition:  mapWMOCondition(intOf(number(current, "weather_code"))),
	}

	return weather.Reading{
		ProviderName: p.name,
		FetchedAt:    p.now().UTC(),
		Raw:          body,
		Display:      subDocument(body, body, "current"),
		Measurements: m,
	}, nil
}
