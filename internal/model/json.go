package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Persisted snapshots are read back through these decoders. A missing key
// and a zero value look the same after encoding/json, so each type decodes
// into a pointer mirror first and requires the keys it cannot do without.

// decodeStrict decodes a single JSON object into dst, rejecting unknown
// keys, then checks dst's `validate` tags.
func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return Validate(dst)
}

type currentWeatherJSON struct {
	Condition     *string `json:"condition" validate:"required"`
	Icon          *string `json:"icon" validate:"required"`
	Temperature   *int    `json:"temperature" validate:"required"`
	WindSpeed     *int    `json:"wind_speed" validate:"required"`
	WindDeg       *int    `json:"wind_deg" validate:"required"`
	CloudCoverage *int    `json:"cloud_coverage" validate:"required"`
	Rain          *int    `json:"rain"`
	Snow          *int    `json:"snow"`
}

// UnmarshalJSON requires every non-optional key to be present.
func (c *CurrentWeather) UnmarshalJSON(data []byte) error {
	var w currentWeatherJSON
	if err := decodeStrict(data, &w); err != nil {
		return fmt.Errorf("current weather: %w", err)
	}
	*c = CurrentWeather{
		Condition:     *w.Condition,
		Icon:          *w.Icon,
		Temperature:   *w.Temperature,
		WindSpeed:     *w.WindSpeed,
		WindDeg:       *w.WindDeg,
		CloudCoverage: *w.CloudCoverage,
		Rain:          w.Rain,
		Snow:          w.Snow,
	}
	return nil
}

type hourForecastJSON struct {
	Timestamp           *int64  `json:"timestamp" validate:"required"`
	Condition           *string `json:"condition" validate:"required"`
	Icon                *string `json:"icon" validate:"required"`
	Temperature         *int    `json:"temperature" validate:"required"`
	PrecipitationChance *int    `json:"precipitation_chance" validate:"required"`
}

// UnmarshalJSON requires every key to be present.
func (h *HourForecast) UnmarshalJSON(data []byte) error {
	var w hourForecastJSON
	if err := decodeStrict(data, &w); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	*h = HourForecast{
		Timestamp:           *w.Timestamp,
		Condition:           *w.Condition,
		Icon:                *w.Icon,
		Temperature:         *w.Temperature,
		PrecipitationChance: *w.PrecipitationChance,
	}
	return nil
}

type calendarEventJSON struct {
	Calendar   *string    `json:"calendar" validate:"required"`
	Summary    *string    `json:"summary" validate:"required"`
	FullDay    *bool      `json:"full_day" validate:"required"`
	Start      *time.Time `json:"start" validate:"required"`
	End        *time.Time `json:"end" validate:"required"`
	Location   string     `json:"location"`
	Directions string     `json:"directions"`
}

// UnmarshalJSON requires every key except location and directions.
func (e *CalendarEvent) UnmarshalJSON(data []byte) error {
	var w calendarEventJSON
	if err := decodeStrict(data, &w); err != nil {
		return fmt.Errorf("calendar event: %w", err)
	}
	*e = CalendarEvent{
		Calendar:   *w.Calendar,
		Summary:    *w.Summary,
		FullDay:    *w.FullDay,
		Start:      *w.Start,
		End:        *w.End,
		Location:   w.Location,
		Directions: w.Directions,
	}
	return nil
}
