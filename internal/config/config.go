package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather/providers"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "config.json"

// AppConfig is built once at start-up and passed to every component.
type AppConfig struct {
	AppEnv   string `validate:"oneof=dev prod test"`
	LogLevel string `validate:"oneof=debug info warn error"`
	HTTPAddr string

	// Delay between polling cycles; ignored when Schedule is set.
	Delay time.Duration `validate:"gt=0"`
	// Schedule is an optional standard cron expression.
	Schedule     string
	CycleTimeout time.Duration `validate:"gte=0"`

	Providers   []ProviderConfig `validate:"min=1,dive"`
	HTTPTimeout time.Duration    `validate:"gt=0"`
	MaxRetries  int              `validate:"gte=0,lte=10"`
	// CircuitFailures opens a provider's breaker after that many consecutive
	// transport or server failures. Zero never opens it.
	CircuitFailures uint32

	Database     DatabaseConfig
	LocationData string

	// In-memory store retention, used when no database driver is set.
	StoreMaxHistory int           `validate:"gte=0"`
	StoreMaxAge     time.Duration `validate:"gte=0"`

	// Print writes every stored observation to stdout in flattened form.
	Print bool

	MQTT     MQTTConfig
	Influx   InfluxConfig
	Geocoder GeocoderConfig
}

// ProviderConfig holds the credentials of one enabled provider.
type ProviderConfig struct {
	Name         string `validate:"required"`
	APIKey       string
	ClientID     string
	ClientSecret string
	BaseURL      string `validate:"omitempty,url"`
}

// Spec converts the entry into a providers.Spec.
func (p ProviderConfig) Spec() providers.Spec {
	return providers.Spec{
		Name:         p.Name,
		APIKey:       p.APIKey,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		BaseURL:      p.BaseURL,
	}
}

// DatabaseConfig selects and parameterizes the SQL store. An empty Driver keeps data in memory.
type DatabaseConfig struct {
	Driver   string `validate:"omitempty,oneof=postgres sqlite3"`
	Host     string
	Port     int `validate:"gte=0,lte=65535"`
	User     string
	Password string
	Name     string
	SSLMode  string

	SQLitePath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MQTTConfig enables the MQTT publisher when Broker is set.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte `validate:"lte=2"`
}

// InfluxConfig enables the InfluxDB publisher when Addr is set.
type InfluxConfig struct {
	Addr        string `validate:"omitempty,url"`
	Username    string
	Password    string
	Database    string
	Measurement string
}

// GeocoderConfig configures the stoptool geocode command.
type GeocoderConfig struct {
	Provider  string `validate:"oneof=nominatim google"`
	BaseURL   string `validate:"omitempty,url"`
	APIKey    string
	UserAgent string
	Pace      time.Duration `validate:"gte=0"`
}

// fileConfig mirrors the on-disk layout. The flat keys follow the historical config.json.
type fileConfig struct {
	APIKey       string            `json:"api_key" yaml:"api_key"`
	ClientID     string            `json:"client_id" yaml:"client_id"`
	ClientSecret string            `json:"client_secret" yaml:"client_secret"`
	RequestURL   string            `json:"request_url" yaml:"request_url"`
	Providers    []string          `json:"providers" yaml:"providers"`
	Keys         map[string]string `json:"keys" yaml:"keys"`

	DBName     string `json:"dbname" yaml:"dbname"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	SSLMode    string `json:"sslmode" yaml:"sslmode"`
	DBDriver   string `json:"db_driver" yaml:"db_driver"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	LocationData string `json:"location_data" yaml:"location_data"`
	Delay        *int   `json:"delay" yaml:"delay"`
	Schedule     string `json:"schedule" yaml:"schedule"`
	HTTPTimeout  string `json:"http_timeout" yaml:"http_timeout"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
	CircuitFails uint32 `json:"circuit_failures" yaml:"circuit_failures"`
	CycleTimeout string `json:"cycle_timeout" yaml:"cycle_timeout"`
	Print        bool   `json:"print" yaml:"print"`

	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	AppEnv   string `json:"app_env" yaml:"app_env"`

	Store struct {
		MaxHistory *int   `json:"max_history" yaml:"max_history"`
		MaxAge     string `json:"max_age" yaml:"max_age"`
	} `json:"store" yaml:"store"`

	MQTT struct {
		Broker      string `json:"broker" yaml:"broker"`
		ClientID    string `json:"client_id" yaml:"client_id"`
		Username    string `json:"username" yaml:"username"`
		Password    string `json:"password" yaml:"password"`
		TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
		QoS         *byte  `json:"qos" yaml:"qos"`
	} `json:"mqtt" yaml:"mqtt"`

	Influx struct {
		Addr        string `json:"addr" yaml:"addr"`
		Username    string `json:"username" yaml:"username"`
		Password    string `json:"password" yaml:"password"`
		Database    string `json:"database" yaml:"database"`
		Measurement string `json:"measurement" yaml:"measurement"`
	} `json:"influx" yaml:"influx"`

	Geocoder struct {
		Provider  string `json:"provider" yaml:"provider"`
		BaseURL   string `json:"base_url" yaml:"base_url"`
		APIKey    string `json:"api_key" yaml:"api_key"`
		UserAgent string `json:"user_agent" yaml:"user_agent"`
		Pace      string `json:"pace" yaml:"pace"`
	} `json:"geocoder" yaml:"geocoder"`
}

var validate = validator.New()

// envKeys maps provider names to the environment variable holding their key.
var envKeys = map[string]string{
	providers.OpenWeatherMap: "OPENWEATHER_API_KEY",
	providers.Weatherbit:     "WEATHERBIT_API_KEY",
	providers.TomorrowIO:     "TOMORROWIO_API_KEY",
	providers.WeatherStack:   "WEATHERSTACK_API_KEY",
}

// Load reads the config file at path (JSON, or YAML by extension), then .env and the
// environment, and validates the result. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Info("no .env file loaded", "error", err)
	}

	var fc fileConfig
	if path != "" {
		if err := readFile(path, &fc); err != nil {
			return nil, err
		}
	}

	cfg, err := build(fc)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure.New(failure.Config, "read config", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return failure.New(failure.Config, "parse "+filepath.Base(path), err)
	}
	return nil
}

func build(fc fileConfig) (*AppConfig, error) {
	cfg := &AppConfig{
		AppEnv:          defaultString(fc.AppEnv, "prod"),
		LogLevel:        strings.ToLower(defaultString(fc.LogLevel, "info")),
		HTTPAddr:        fc.HTTPAddr,
		Delay:           time.Hour,
		Schedule:        strings.TrimSpace(fc.Schedule),
		MaxRetries:      fc.MaxRetries,
		CircuitFailures: fc.CircuitFails,
		LocationData:    fc.LocationData,
		Print:           fc.Print,

		StoreMaxHistory: 96,
		StoreMaxAge:     24 * time.Hour,
	}
	if fc.Delay != nil {
		cfg.Delay = time.Duration(*fc.Delay) * time.Second
	}
	if fc.Store.MaxHistory != nil {
		cfg.StoreMaxHistory = *fc.Store.MaxHistory
	}

	var err error
	if cfg.HTTPTimeout, err = parseDuration("http_timeout", fc.HTTPTimeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = parseDuration("cycle_timeout", fc.CycleTimeout, 0); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = parseDuration("store.max_age", fc.Store.MaxAge, cfg.StoreMaxAge); err != nil {
		return nil, err
	}

	names := fc.Providers
	if len(names) == 0 {
		names = []string{providers.OpenWeatherMap}
	}
	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		p := ProviderConfig{Name: name, APIKey: fc.Keys[name]}
		if name == providers.AerisWeather {
			p.ClientID, p.ClientSecret = fc.ClientID, fc.ClientSecret
		}
		// api_key and request_url predate multi-provider configs and belong to the first provider.
		if i == 0 {
			if p.APIKey == "" {
				p.APIKey = fc.APIKey
			}
			p.BaseURL = fc.RequestURL
		}
		cfg.Providers = append(cfg.Providers, p)
	}

	cfg.Database = DatabaseConfig{
		Driver:          fc.DBDriver,
		Host:            defaultString(fc.Host, "localhost"),
		Port:            fc.Port,
		User:            fc.User,
		Password:        fc.Password,
		Name:            fc.DBName,
		SSLMode:         defaultString(fc.SSLMode, "disable"),
		SQLitePath:      defaultString(fc.SQLitePath, "data/stopweather.db"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
	if cfg.Database.Port == 0 && cfg.Database.Driver == "postgres" {
		cfg.Database.Port = 5432
	}

	cfg.MQTT = MQTTConfig{
		Broker:      fc.MQTT.Broker,
		ClientID:    defaultString(fc.MQTT.ClientID, "stopweather"),
		Username:    fc.MQTT.Username,
		Password:    fc.MQTT.Password,
		TopicPrefix: defaultString(fc.MQTT.TopicPrefix, "stopweather"),
		QoS:         1,
	}
	if fc.MQTT.QoS != nil {
		cfg.MQTT.QoS = *fc.MQTT.QoS
	}

	cfg.Influx = InfluxConfig{
		Addr:        fc.Influx.Addr,
		Username:    fc.Influx.Username,
		Password:    fc.Influx.Password,
		Database:    defaultString(fc.Influx.Database, "stopweather"),
		Measurement: defaultString(fc.Influx.Measurement, "weather"),
	}

	cfg.Geocoder = GeocoderConfig{
		Provider:  defaultString(strings.ToLower(fc.Geocoder.Provider), "nominatim"),
		BaseURL:   fc.Geocoder.BaseURL,
		APIKey:    fc.Geocoder.APIKey,
		UserAgent: defaultString(fc.Geocoder.UserAgent, "stopweather/1.0"),
	}
	if cfg.Geocoder.Pace, err = parseDuration("geocoder.pace", fc.Geocoder.Pace, time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv lets the environment override secrets and deployment settings.
func applyEnv(cfg *AppConfig) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if env, ok := envKeys[p.Name]; ok {
			p.APIKey = getenvDefault(env, p.APIKey)
		}
		if p.Name == providers.AerisWeather {
			p.ClientID = getenvDefault("AERIS_CLIENT_ID", p.ClientID)
			p.ClientSecret = getenvDefault("AERIS_CLIENT_SECRET", p.ClientSecret)
		}
	}

	cfg.Geocoder.APIKey = getenvDefault("GOOGLE_GEOCODER_API_KEY", cfg.Geocoder.APIKey)

	cfg.Database.Driver = getenvDefault("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getenvDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getenvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getenvDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getenvDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getenvDefault("DB_NAME", cfg.Database.Name)
	cfg.Database.SQLitePath = getenvDefault("SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.AppEnv = getenvDefault("APP_ENV", cfg.AppEnv)
}

// Validate checks the struct tags and the rules that span several fields.
// Provider credentials are left to ValidateProviders.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return failure.New(failure.Config, "validate", err)
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if !providers.Known(p.Name) {
			return failure.Newf(failure.Config, "validate", "unknown provider %q (known: %s)",
				p.Name, strings.Join(providers.Names, ", "))
		}
		if seen[p.Name] {
			return failure.Newf(failure.Config, "validate", "provider %q listed twice", p.Name)
		}
		seen[p.Name] = true
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return failure.New(failure.Config, "validate schedule", err)
		}
	}

	if c.Database.Driver == "postgres" && c.Database.Name == "" {
		return failure.Newf(failure.Config, "validate", "postgres needs dbname")
	}
	return nil
}

// ValidateProviders checks the credentials of every enabled provider. Only commands
// that fetch weather call it, so database and CSV tooling runs without keys.
func (c *AppConfig) ValidateProviders() error {
	for _, p := range c.Providers {
		switch {
		case p.Name == providers.AerisWeather:
			if p.ClientID == "" || p.ClientSecret == "" {
				return failure.Newf(failure.Config, "validate", "%s needs client_id and client_secret", p.Name)
			}
		case providers.NeedsKey(p.Name) && p.APIKey == "":
			return failure.Newf(failure.Config, "validate", "%s needs an api key", p.Name)
		}
	}
	return nil
}

// HTTPEnabled reports whether the read API should be served.
func (c *AppConfig) HTTPEnabled() bool { return c.HTTPAddr != "" }

func parseDuration(key, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	// bare numbers are seconds, like delay
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, failure.New(failure.Config, fmt.Sprintf("invalid %s", key), err)
	}
	return d, nil
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
