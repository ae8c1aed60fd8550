package weather

import (
	"testing"
	"time"
)

func TestSummarizeAveragesPresentFields(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	obs := []Observation{
		{
			Provider:  "openweathermap",
			FetchedAt: ts,
			Measurements: Measurements{
				Temperature: Float(10),
				Humidity:    Float(80),
				Condition:   ConditionRain,
			},
		},
		{
			Provider:  "weatherbit",
			FetchedAt: ts.Add(time.Minute),
			Measurements: Measurements{
				Temperature: Float(12),
				Condition:   ConditionRain,
			},
		},
		{
			Provider:     "openmeteo",
			FetchedAt:    ts,
			Measurements: Measurements{Condition: ConditionCloudy},
		},
	}

	s := Summarize(7, obs)
	if s.LocationID != 7 {
		t.Fatalf("expected location 7, got %d", s.LocationID)
	}
	if s.Temperature != 11 {
		t.Errorf("expected mean temperature 11, got %v", s.Temperature)
	}
	if s.Humidity != 80 {
		t.Errorf("expected humidity from the only reporting provider, got %v", s.Humidity)
	}
	if s.Condition != ConditionRain {
		t.Errorf("expected majority condition rain, got %s", s.Condition)
	}
	if !s.Timestamp.Equal(ts.Add(time.Minute)) {
		t.Errorf("expected newest timestamp, got %v", s.Timestamp)
	}
	if len(s.Providers) != 3 {
		t.Errorf("expected 3 contributions, got %d", len(s.Providers))
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(1, nil)
	if s.Condition != ConditionUnknown {
		t.Fatalf("expected unknown condition, got %s", s.Condition)
	}
	if s.Timestamp.IsZero() {
		t.Fatal("expected a timestamp to be set")
	}
}
