package providers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

const owmBody = `{"coord":{"lon":18.7548,"lat":49.2014},"weather":[{"id":500,"main":"Rain","description":"light rain"}],` +
	`"main":{"temp":10.5,"feels_like":9.1,"temp_min":9,"temp_max":11.2,"pressure":1012,"humidity":81,"sea_level":1012,"grnd_level":975},` +
	`"visibility":10000,"wind":{"speed":3.6,"deg":250,"gust":7.2},"rain":{"1h":0.4},"clouds":{"all":75},` +
	`"dt":1704888000,"sys":{"sunrise":1704869000,"sunset":1704899000},"timezone":3600,"name":"Zilina"}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func jsonHandler(body string, check func(r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: expected %v, got nil", name, want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Fatalf("%s: expected %v, got %v", name, want, *got)
	}
}

func testHTTPConfig() HTTPClientConfig {
	return DefaultHTTPConfig(&http.Client{Timeout: 5 * time.Second})
}

func TestOpenWeatherFetch(t *testing.T) {
	var query string
	srv := newServer(t, jsonHandler(owmBody, func(r *http.Request) { query = r.URL.RawQuery }))

	p := NewOpenWeatherProvider(testHTTPConfig(), "secret").WithBaseURL(srv.URL)
	r, err := p.Fetch(context.Background(), 49.201359, 18.754791)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"lat=49.201359", "lon=18.754791", "appid=secret", "units=metric"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected query to contain %q, got %q", want, query)
		}
	}

	approx(t, "temp", r.Temperature, 10.5)
	approx(t, "humidity", r.Humidity, 81)
	approx(t, "ground level", r.GroundLevel, 975)
	approx(t, "rain 1h", r.Rain1h, 0.4)
	approx(t, "clouds", r.CloudsAll, 75)
	if r.Rain3h != nil || r.Snow1h != nil {
		t.Errorf("expected absent fields to stay nil")
	}
	if r.Condition != weather.ConditionRain {
		t.Errorf("expected rain, got %s", r.Condition)
	}
	if r.ObservedAt == nil || r.ObservedAt.Unix() != 1704888000 {
		t.Errorf("unexpected observed at %v", r.ObservedAt)
	}
	if r.Timezone == nil || *r.Timezone != 3600 {
		t.Errorf("unexpected timezone %v", r.Timezone)
	}
	if string(r.Display) != owmBody || string(r.Raw) != owmBody {
		t.Errorf("expected the whole body as raw and display document")
	}
}

func TestOpenWeatherMissingFieldIsDecodeFailure(t *testing.T) {
	srv := newServer(t, jsonHandler(`{"weather":[],"name":"X"}`, nil))

	p := NewOpenWeatherProvider(testHTTPConfig(), "secret").WithBaseURL(srv.URL)
	_, err := p.Fetch(context.Background(), 48.1, 17.1)
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "main.temp") {
		t.Fatalf("expected error to name the missing field, got %v", err)
	}
}

func TestMalformedJSONIsDecodeFailure(t *testing.T) {
	srv := newServer(t, jsonHandler(`{"main": {`, nil))

	p := NewOpenWeatherProvider(testHTTPConfig(), "secret").WithBaseURL(srv.URL)
	_, err := p.Fetch(context.Background(), 48.1, 17.1)
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestServerErrorIsNetworkFailureWithoutRetry(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	p := NewWeatherbitProvider(testHTTPConfig(), "secret").WithBaseURL(srv.URL)
	_, err := p.Fetch(context.Background(), 48.1, 17.1)
	if !failure.Is(err, failure.Network) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestBackoffRetriesWhenConfigured(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(owmBody))
	})

	cfg := testHTTPConfig()
	cfg.Backoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	p := NewOpenWeatherProvider(cfg, "secret").WithBaseURL(srv.URL)
	if _, err := p.Fetch(context.Background(), 48.1, 17.1); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFailingStopsDoNotBlockLaterStops(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Query().Get("lat") {
		case "1.000000":
			http.Error(w, "bad coordinates", http.StatusBadRequest)
		case "2.000000":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(owmBody))
		}
	})

	p := NewOpenWeatherProvider(testHTTPConfig(), "secret").WithBaseURL(srv.URL)
	for i := 0; i < 8; i++ {
		lat := 1.0 + float64(i%2)
		if _, err := p.Fetch(context.Background(), lat, 17.1); !failure.Is(err, failure.Network) {
			t.Fatalf("stop %d: expected network failure, got %v", i, err)
		}
	}
	if _, err := p.Fetch(context.Background(), 49.2, 18.75); err != nil {
		t.Fatalf("expected the healthy stop to be fetched, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 9 {
		t.Fatalf("expected every stop to be requested, got %d requests", got)
	}
}

func TestCircuitOpensOnlyWhenConfigured(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Query().Get("lat") == "1.000000" {
			http.Error(w, "bad coordinates", http.StatusBadRequest)
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	})

	cfg := testHTTPConfig()
	cfg.CircuitFailures = 3
	p := NewOpenWeatherProvider(cfg, "secret").WithBaseURL(srv.URL)

	// client errors are per-stop and never count
	for i := 0; i < 5; i++ {
		_, _ = p.Fetch(context.Background(), 1, 17.1)
	}
	for i := 0; i < 3; i++ {
		_, _ = p.Fetch(context.Background(), 2, 17.1)
	}
	if got := atomic.LoadInt32(&hits); got != 8 {
		t.Fatalf("expected 8 requests before the breaker opens, got %d", got)
	}

	_, err := p.Fetch(context.Background(), 2, 17.1)
	if !failure.Is(err, failure.Network) || !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 8 {
		t.Fatalf("expected no request while open, got %d", got)
	}
}

func TestMissingKeyMakesNoRequest(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&hits, 1) })

	for _, p := range []weather.Provider{
		NewOpenWeatherProvider(testHTTPConfig(), "").WithBaseURL(srv.URL),
		NewTomorrowIOProvider(testHTTPConfig(), "").WithBaseURL(srv.URL),
		NewWeatherStackProvider(testHTTPConfig(), "").WithBaseURL(srv.URL),
		NewWeatherbitProvider(testHTTPConfig(), "").WithBaseURL(srv.URL),
		NewAerisWeatherProvider(testHTTPConfig(), "id", "").WithBaseURL(srv.URL),
	} {
		_, err := p.Fetch(context.Background(), 48.1, 17.1)
		if !failure.Is(err, failure.Config) {
			t.Errorf("%s: expected config failure, got %v", p.Name(), err)
		}
	}
	if hits != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestOpenMeteoFetch(t *testing.T) {
	const body = `{"latitude":49.2,"longitude":18.75,"utc_offset_seconds":0,` +
		`"current":{"time":1704888000,"interval":900,"temperature_2m":-1.5,"relative_humidity_2m":90,` +
		`"apparent_temperature":-4.2,"snowfall":0.7,"weather_code":73,"wind_speed_10m":2.5,"pressure_msl":1020.1}}`
	var query string
	srv := newServer(t, jsonHandler(body, func(r *http.Request) { query = r.URL.RawQuery }))

	p := NewOpenMeteoProvider(testHTTPConfig()).WithBaseURL(srv.URL)
	r, err := p.Fetch(context.Background(), 49.2, 18.75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"latitude=49.200000", "wind_speed_unit=ms", "timeformat=unixtime", "temperature_2m"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected query to contain %q, got %q", want, query)
		}
	}
	approx(t, "temp", r.Temperature, -1.5)
	approx(t, "snow", r.Snow1h, 7)
	approx(t, "wind", r.WindSpeed, 2.5)
	if r.Condition != weather.ConditionSnow {
		t.Errorf("expected snow, got %s", r.Condition)
	}
	if !strings.HasPrefix(string(r.Display), `{"time":1704888000,"interval":900`) {
		t.Errorf("expected display to be the current block in source order, got %s", r.Display)
	}
}

func TestOpenMeteoMissingCurrentIsDecodeFailure(t *testing.T) {
	srv := newServer(t, jsonHandler(`{"latitude":49.2}`, nil))

	_, err := NewOpenMeteoProvider(testHTTPConfig()).WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.7)
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestTomorrowIOFetch(t *testing.T) {
	const body = `{"data":{"time":"2024-01-10T12:00:00Z","values":{"temperature":4.3,"humidity":70,` +
		`"visibility":9.5,"windSpeed":5.1,"weatherCode":4001}},"location":{"lat":49.2,"lon":18.75}}`
	var query string
	srv := newServer(t, jsonHandler(body, func(r *http.Request) { query = r.URL.RawQuery }))

	r, err := NewTomorrowIOProvider(testHTTPConfig(), "tk").WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "location=49.200000%2C18.750000") || !strings.Contains(query, "apikey=tk") {
		t.Errorf("unexpected query %q", query)
	}
	approx(t, "temp", r.Temperature, 4.3)
	approx(t, "visibility", r.Visibility, 9500)
	if r.Condition != weather.ConditionRain {
		t.Errorf("expected rain, got %s", r.Condition)
	}
	if r.ObservedAt == nil || !r.ObservedAt.Equal(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected observed at %v", r.ObservedAt)
	}
	if !strings.HasPrefix(string(r.Display), `{"time":"2024-01-10T12:00:00Z"`) {
		t.Errorf("expected display to be the data block, got %s", r.Display)
	}
}

func TestWeatherStackFetch(t *testing.T) {
	const body = `{"request":{"type":"LatLon"},"location":{"name":"Zilina","localtime_epoch":1704888000,"utc_offset":"1.0"},` +
		`"current":{"observation_time":"12:00 PM","temperature":3,"weather_descriptions":["Light Rain Shower"],` +
		`"wind_speed":36,"wind_degree":200,"pressure":1008,"precip":0.2,"humidity":93,"cloudcover":100,"feelslike":0,"visibility":8}}`
	var query string
	srv := newServer(t, jsonHandler(body, func(r *http.Request) { query = r.URL.RawQuery }))

	r, err := NewWeatherStackProvider(testHTTPConfig(), "ws").WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "access_key=ws") || !strings.Contains(query, "units=m") {
		t.Errorf("unexpected query %q", query)
	}
	approx(t, "wind", r.WindSpeed, 10)
	approx(t, "visibility", r.Visibility, 8000)
	if r.Timezone == nil || *r.Timezone != 3600 {
		t.Errorf("unexpected timezone %v", r.Timezone)
	}
	if r.Condition != weather.ConditionRain {
		t.Errorf("expected rain, got %s", r.Condition)
	}
	if !strings.HasPrefix(string(r.Display), `{"observation_time":"12:00 PM"`) {
		t.Errorf("expected display to be the current block, got %s", r.Display)
	}
}

func TestWeatherStackErrorBodyIsNetworkFailure(t *testing.T) {
	const body = `{"success":false,"error":{"code":101,"type":"invalid_access_key","info":"You have not supplied a valid API Access Key."}}`
	srv := newServer(t, jsonHandler(body, nil))

	_, err := NewWeatherStackProvider(testHTTPConfig(), "bad").WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.75)
	if !failure.Is(err, failure.Network) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "valid API Access Key") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
}

func TestWeatherbitFetch(t *testing.T) {
	const body = `{"count":1,"data":[{"app_temp":20.1,"temp":21.4,"rh":40,"pres":990,"slp":1015,"wind_spd":2.1,` +
		`"vis":16,"clouds":10,"ts":1704888000,"sunrise":"06:12","sunset":"15:40","weather":{"code":801,"description":"Few clouds"}}]}`
	srv := newServer(t, jsonHandler(body, nil))

	r, err := NewWeatherbitProvider(testHTTPConfig(), "wb").WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, "temp", r.Temperature, 21.4)
	approx(t, "sea level", r.SeaLevel, 1015)
	if r.Condition != weather.ConditionCloudy {
		t.Errorf("expected cloudy, got %s", r.Condition)
	}
	wantSunrise := time.Date(2024, 1, 10, 6, 12, 0, 0, time.UTC)
	if r.Sunrise == nil || !r.Sunrise.Equal(wantSunrise) {
		t.Errorf("expected sunrise %v, got %v", wantSunrise, r.Sunrise)
	}
	if !strings.HasPrefix(string(r.Display), `{"app_temp":20.1`) {
		t.Errorf("expected display to be data[0], got %s", r.Display)
	}
}

func TestWeatherbitEmptyDataIsDecodeFailure(t *testing.T) {
	srv := newServer(t, jsonHandler(`{"count":0,"data":[]}`, nil))

	_, err := NewWeatherbitProvider(testHTTPConfig(), "wb").WithBaseURL(srv.URL).Fetch(context.Background(), 49.2, 18.75)
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestAerisWeatherFetch(t *testing.T) {
	const body = `{"success":true,"error":null,"response":[{"loc":{"lat":49.2,"long":18.75},` +
		`"place":{"name":"zilina"},"periods":[{"timestamp":1704888000,"tempC":2,"feelslikeC":-1,"humidity":88,` +
		`"pressureMB":1011,"windSpeedKPH":18,"windDirDEG":90,"sky":100,"precipMM":0,"weather":"Cloudy"}],` +
		`"profile":{"tz":"Europe/Bratislava","tzoffset":3600}}]}`
	var path, query string
	srv := newServer(t, jsonHandler(body, func(r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
	}))

	r, err := NewAerisWeatherProvider(testHTTPConfig(), "cid", "csec").WithBaseURL(srv.URL+"/conditions").
		Fetch(context.Background(), 49.201359, 18.754791)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/conditions/49.201359,18.754791" {
		t.Errorf("unexpected path %q", path)
	}
	for _, want := range []string{"client_id=cid", "client_secret=csec", "plimit=1", "filter=1min", "format=json"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected query to contain %q, got %q", want, query)
		}
	}
	approx(t, "temp", r.Temperature, 2)
	approx(t, "wind", r.WindSpeed, 5)
	if r.Timezone == nil || *r.Timezone != 3600 {
		t.Errorf("unexpected timezone %v", r.Timezone)
	}
	if r.Condition != weather.ConditionCloudy {
		t.Errorf("expected cloudy, got %s", r.Condition)
	}
	if !strings.HasPrefix(string(r.Display), `{"loc":`) {
		t.Errorf("expected display to be response[0], got %s", r.Display)
	}
}

func TestAerisWeatherErrorBodyIsNetworkFailure(t *testing.T) {
	const body = `{"success":false,"error":{"code":"invalid_client","description":"The client provided is not valid."},"response":[]}`
	srv := newServer(t, jsonHandler(body, nil))

	_, err := NewAerisWeatherProvider(testHTTPConfig(), "cid", "csec").WithBaseURL(srv.URL).
		Fetch(context.Background(), 49.2, 18.75)
	if !failure.Is(err, failure.Network) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_client") {
		t.Fatalf("expected error code in message, got %v", err)
	}
}

func TestNewUnknownProviderIsConfigFailure(t *testing.T) {
	_, err := New(Spec{Name: "darksky"}, testHTTPConfig())
	if !failure.Is(err, failure.Config) {
		t.Fatalf("expected config failure, got %v", err)
	}

	ps, err := NewAll([]Spec{{Name: OpenMeteo}, {Name: OpenWeatherMap, APIKey: "k"}}, testHTTPConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ps) != 2 || ps[0].Name() != OpenMeteo || ps[1].Name() != OpenWeatherMap {
		t.Fatalf("unexpected providers %v", ps)
	}
}
