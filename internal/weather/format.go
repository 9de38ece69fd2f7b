package weather

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Emoji maps an OpenWeatherMap condition code to an emoji.
func Emoji(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "☈"
	case code >= 300 && code < 400:
		return "drizzle"
	case code >= 500 && code < 600:
		return "🌧️"
	case code >= 600 && code < 700:
		return "❄️"
	case code >= 700 && code < 800:
		return ""
	}

	switch code {
	case 800:
		return "☀️"
	case 801:
		return "⛅"
	case 802, 803:
		return "☁️"
	case 900, 901, 902, 905:
		return "☈"
	case 903, 906:
		return "❄️"
	case 904:
		return "🌞"
	}
	return "😎"
}

// formatTemp rounds to whole degrees, never printing "-0".
func formatTemp(t float64) string {
	r := math.Round(t)
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

func placeName(city, country string) string {
	if country == "" {
		return city
	}
	return city + ", " + country
}

// FormatCurrent renders the current weather reply.
func FormatCurrent(c *Current) string {
	return fmt.Sprintf("Current weather in **%s**: %s, %s °C. %s",
		placeName(c.CityName, c.CountryName),
		c.Description,
		formatTemp(c.TemperatureCelsius),
		Emoji(c.ConditionCode))
}

// FormatForecast renders the multi-day forecast reply.
func FormatForecast(f *Forecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "5-day forecast for **%s**:\n\n", placeName(f.CityName, f.CountryName))
	for _, d := range f.Days {
		lo, hi := formatTemp(d.MinTempCelsius), formatTemp(d.MaxTempCelsius)
		temperature := "between " + lo + " °C and " + hi + " °C"
		if lo == hi {
			temperature = "around " + lo + " °C"
		}
		fmt.Fprintf(&b, "**%s:** %s, %s. %s\n", d.Weekday, d.Description, temperature, Emoji(d.ConditionCode))
	}
	return b.String()
}
