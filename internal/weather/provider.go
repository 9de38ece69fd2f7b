// Package weather fetches current conditions and forecasts and renders them
// as chat replies.
package weather

import "context"

// Current is the current weather at a location.
type Current struct {
	CityName           string  `json:"city_name"`
	CountryName        string  `json:"country_name"`
	Description        string  `json:"description"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	ConditionCode      int     `json:"condition_code"`
}

// Day is one daily forecast entry.
type Day struct {
	Weekday        string  `json:"weekday"`
	Description    string  `json:"description"`
	MinTempCelsius float64 `json:"min_temp_celsius"`
	MaxTempCelsius float64 `json:"max_temp_celsius"`
	ConditionCode  int     `json:"condition_code"`
}

// Forecast is a multi-day forecast for a location.
type Forecast struct {
	CityName    string `json:"city_name"`
	CountryName string `json:"country_name"`
	Days        []Day  `json:"days"`
}

// Provider is a source of weather data. Location is a free-form query such
// as "Berlin" or "Paris,FR".
type Provider interface {
	Current(ctx context.Context, location string) (*Current, error)
	Forecast(ctx context.Context, location string) (*Forecast, error)
}
