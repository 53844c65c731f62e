package model

import (
	"fmt"
	"math"
	"time"
)

// CurrentWeather is the observed weather at fetch time.
type CurrentWeather struct {
	Condition     string `json:"condition" validate:"required"`
	Icon          string `json:"icon" validate:"required"`
	Temperature   int    `json:"temperature"`
	WindSpeed     int    `json:"wind_speed" validate:"min=0"` // km/h
	WindDeg       int    `json:"wind_deg" validate:"min=0,max=360"`
	CloudCoverage int    `json:"cloud_coverage" validate:"min=0,max=100"`
	// Rain / Snow are mm/h over the last hour, when reported.
	Rain *int `json:"rain" validate:"omitempty,min=0"`
	Snow *int `json:"snow" validate:"omitempty,min=0"`
}

// CurrentWeatherInput carries unrounded provider values.
type CurrentWeatherInput struct {
	Condition     string
	Icon          string
	Temperature   float64
	WindSpeedKMH  float64
	WindDeg       float64
	CloudCoverage float64
	Rain          *float64
	Snow          *float64
}

// NewCurrentWeather rounds the numeric inputs and validates the result.
func NewCurrentWeather(in CurrentWeatherInput) (CurrentWeather, error) {
	cw := CurrentWeather{
		Condition:     in.Condition,
		Icon:          in.Icon,
		Temperature:   round(in.Temperature),
		WindSpeed:     round(in.WindSpeedKMH),
		WindDeg:       round(in.WindDeg),
		CloudCoverage: round(in.CloudCoverage),
		Rain:          roundPtr(in.Rain),
		Snow:          roundPtr(in.Snow),
	}
	if err := Validate(cw); err != nil {
		return CurrentWeather{}, err
	}
	return cw, nil
}

// HourForecast is one forecast slot.
type HourForecast struct {
	Timestamp           int64  `json:"timestamp" validate:"required"`
	Condition           string `json:"condition" validate:"required"`
	Icon                string `json:"icon" validate:"required"`
	Temperature         int    `json:"temperature"`
	PrecipitationChance int    `json:"precipitation_chance" validate:"min=0,max=100"`
}

// NewHourForecast builds a forecast slot. pop is the provider's
// probability of precipitation in [0,1].
func NewHourForecast(ts int64, condition, icon string, temp, pop float64) (HourForecast, error) {
	hf := HourForecast{
		Timestamp:           ts,
		Condition:           condition,
		Icon:                icon,
		Temperature:         round(temp),
		PrecipitationChance: round(pop * 100),
	}
	if err := Validate(hf); err != nil {
		return HourForecast{}, err
	}
	return hf, nil
}

// WeatherSnapshot is the weather feed payload. Forecast stays in the
// order the provider returned it.
type WeatherSnapshot struct {
	Timestamp int64          `json:"timestamp" validate:"required"`
	Current   CurrentWeather `json:"current" validate:"required"`
	Forecast  []HourForecast `json:"forecast" validate:"dive"`
}

// Validate implements the cache payload contract. An empty forecast is
// fine; a missing one is not.
func (w WeatherSnapshot) Validate() error {
	if w.Forecast == nil {
		return fmt.Errorf("%w: weather snapshot is missing the forecast", ErrInvalid)
	}
	return Validate(w)
}

// FetchedAt returns Timestamp as a time.
func (w WeatherSnapshot) FetchedAt() time.Time {
	return time.Unix(w.Timestamp, 0)
}

func round(f float64) int {
	return int(math.Round(f))
}

func roundPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	v := round(*f)
	return &v
}
