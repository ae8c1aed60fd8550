package publish

import "github.com/i474232898/stopweather/internal/weather"

// Fields returns the measurements the provider reported, keyed by column name.
// Missing values are left out rather than sent as zero.
func Fields(m weather.Measurements) map[string]interface{} {
	fields := make(map[string]interface{})
	add := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}

	add("main_temp", m.Temperature)
	add("main_feels_like", m.FeelsLike)
	add("main_temp_min", m.TempMin)
	add("main_temp_max", m.TempMax)
	add("main_pressure", m.Pressure)
	add("main_humidity", m.Humidity)
	add("main_sea_level", m.SeaLevel)
	add("main_grnd_level", m.GroundLevel)
	add("visibility", m.Visibility)
	add("wind_speed", m.WindSpeed)
	add("wind_deg", m.WindDeg)
	add("wind_gust", m.WindGust)
	add("clouds_all", m.CloudsAll)
	add("rain_1h", m.Rain1h)
	add("rain_3h", m.Rain3h)
	add("snow_1h", m.Snow1h)
	add("snow_3h", m.Snow3h)

	if m.Condition != "" {
		fields["condition"] = string(m.Condition)
	}
	return fields
}
