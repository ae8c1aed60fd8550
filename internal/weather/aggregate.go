package weather

import "time"

// Summarize combines the latest observation of each provider into a single Summary.
// Numeric fields are averaged over the observations that report them; the condition
// is selected by majority (first seen wins a tie).
func Summarize(locationID int64, observations []Observation) Summary {
	if len(observations) == 0 {
		return Summary{
			LocationID: locationID,
			Timestamp:  time.Now().UTC(),
			Condition:  ConditionUnknown,
		}
	}

	var temp, humidity, wind, pressure, precip mean

	conditionCounts := make(map[Condition]int)
	var conditionOrder []Condition
	providers := make([]ProviderContribution, 0, len(observations))
	var newestTS time.Time

	for _, o := range observations {
		temp.add(o.Temperature)
		humidity.add(o.Humidity)
		wind.add(o.WindSpeed)
		pressure.add(o.Pressure)
		precip.add(o.Rain1h)

		cond := o.Condition
		if cond == "" {
			cond = ConditionUnknown
		}
		if _, seen := conditionCounts[cond]; !seen {
			conditionOrder = append(conditionOrder, cond)
		}
		conditionCounts[cond]++

		ts := o.FetchedAt
		if o.ObservedAt != nil {
			ts = *o.ObservedAt
		}
		if ts.After(newestTS) {
			newestTS = ts
		}

		providers = append(providers, ProviderContribution{
			ProviderName: o.Provider,
			Timestamp:    ts,
		})
	}

	// Pick majority condition.
	bestCond := ConditionUnknown
	bestCount := 0
	for _, cond := range conditionOrder {
		if count := conditionCounts[cond]; count > bestCount {
			bestCount = count
			bestCond = cond
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	return Summary{
		LocationID:  locationID,
		Timestamp:   newestTS.UTC(),
		Temperature: temp.value(),
		Humidity:    humidity.value(),
		WindSpeed:   wind.value(),
		Pressure:    pressure.value(),
		PrecipMM:    precip.value(),
		Condition:   bestCond,
		Providers:   providers,
	}
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}
