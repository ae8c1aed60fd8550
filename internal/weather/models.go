package weather

import (
	"encoding/json"
	"strconv"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Location is a bus stop we track weather for.
// A zero latitude or longitude means the position is unknown.
type Location struct {
	StopID    int64   `json:"stopId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	State     string  `json:"state,omitempty"`
	Region    string  `json:"region,omitempty"`
	Town      string  `json:"town,omitempty"`
	TownPart  string  `json:"townPart,omitempty"`
	StopName  string  `json:"stopName,omitempty"`
}

// HasCoordinates reports whether the stop can be sent to a provider.
func (l Location) HasCoordinates() bool {
	return l.Latitude != 0 && l.Longitude != 0
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return strconv.FormatInt(l.StopID, 10)
}

// Label is the human-readable name used in log and print lines.
func (l Location) Label() string {
	switch {
	case l.Town != "" && l.StopName != "":
		return l.Town + " " + l.StopName
	case l.StopName != "":
		return l.StopName
	default:
		return "stop " + l.Key()
	}
}

// Measurements are the flattened scalar columns extracted from a provider payload.
// Nil means the provider did not report the value.
type Measurements struct {
	Temperature *float64 `json:"temperatureC,omitempty"`
	FeelsLike   *float64 `json:"feelsLikeC,omitempty"`
	TempMin     *float64 `json:"tempMinC,omitempty"`
	TempMax     *float64 `json:"tempMaxC,omitempty"`
	Pressure    *float64 `json:"pressureHpa,omitempty"`
	Humidity    *float64 `json:"humidityPercent,omitempty"`
	SeaLevel    *float64 `json:"seaLevelHpa,omitempty"`
	GroundLevel *float64 `json:"groundLevelHpa,omitempty"`
	Visibility  *float64 `json:"visibilityM,omitempty"`
	WindSpeed   *float64 `json:"windSpeedMs,omitempty"`
	WindDeg     *float64 `json:"windDeg,omitempty"`
	WindGust    *float64 `json:"windGustMs,omitempty"`
	CloudsAll   *float64 `json:"cloudsPercent,omitempty"`
	Rain1h      *float64 `json:"rain1hMm,omitempty"`
	Rain3h      *float64 `json:"rain3hMm,omitempty"`
	Snow1h      *float64 `json:"snow1hMm,omitempty"`
	Snow3h      *float64 `json:"snow3hMm,omitempty"`

	ObservedAt *time.Time `json:"observedAt,omitempty"`
	Sunrise    *time.Time `json:"sunrise,omitempty"`
	Sunset     *time.Time `json:"sunset,omitempty"`
	Timezone   *int64     `json:"timezoneOffsetS,omitempty"`

	Condition Condition `json:"condition"`
}

// Observation is one provider reading for one stop in one polling cycle.
type Observation struct {
	ID         int64     `json:"id,omitempty"`
	LocationID int64     `json:"locationId"`
	Provider   string    `json:"provider"`
	CycleSlot  time.Time `json:"cycleSlot"` // always UTC
	FetchedAt  time.Time `json:"fetchedAt"` // always UTC

	Measurements

	// Raw is the provider's original payload.
	Raw json.RawMessage `json:"raw,omitempty"`
	// Display is the part of the payload shown by print mode; not persisted.
	Display json.RawMessage `json:"-"`
}

// Summary merges the latest observation of each provider for a stop.
type Summary struct {
	LocationID  int64     `json:"locationId"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeedMs"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`

	// Providers contributing to this summary.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}

// Float returns a pointer to v; handy when building Measurements by hand.
func Float(v float64) *float64 {
	return &v
}
