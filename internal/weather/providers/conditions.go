package providers

import (
	"github.com/i474232898/stopweather/internal/common"
	"github.com/i474232898/stopweather/internal/weather"
)

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

// WMO weather interpretation codes, used by Open-Meteo.
func mapWMOCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}

func mapTomorrowCondition(code int) weather.Condition {
	switch {
	case code == 1000 || code == 1100:
		return weather.ConditionClear
	case code == 1001 || code == 1101 || code == 1102:
		return weather.ConditionCloudy
	case code == 2000 || code == 2100:
		return weather.ConditionMist
	case code >= 4000 && code < 5000, code >= 6000 && code < 7000:
		return weather.ConditionRain
	case code >= 5000 && code < 6000, code >= 7000 && code < 8000:
		return weather.ConditionSnow
	case code == 8000:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}

func mapWeatherbitCondition(code int) weather.Condition {
	switch {
	case code >= 200 && code < 300:
		return weather.ConditionStorm
	case code >= 300 && code < 600:
		return weather.ConditionRain
	case code >= 600 && code < 700:
		return weather.ConditionSnow
	case code >= 700 && code < 800:
		return weather.ConditionMist
	case code == 800:
		return weather.ConditionClear
	case code > 800 && code < 900:
		return weather.ConditionCloudy
	default:
		return weather.ConditionUnknown
	}
}

// mapTextCondition maps a free-text description such as "Light rain shower".
func mapTextCondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(text, "snow", "sleet", "blizzard", "flurries"):
		return weather.ConditionSnow
	case common.HasAny(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(text, "fog", "mist", "haze"):
		return weather.ConditionMist
	case common.HasAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear", "fair"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}

func intOf(v *float64) int {
	if v == nil {
		return -1
	}
	return int(*v)
}
