package model

import (
	"fmt"
	"time"
)

// CalendarEvent is a classified, display-ready calendar entry.
type CalendarEvent struct {
	Calendar   string    `json:"calendar" validate:"required"`
	Summary    string    `json:"summary" validate:"required"`
	FullDay    bool      `json:"full_day"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required,gtefield=Start"`
	Location   string    `json:"location,omitempty"`
	Directions string    `json:"directions,omitempty"`
}

// NewCalendarEvent validates raw and converts it into a CalendarEvent whose
// bounds are expressed in loc. Full-day bounds are re-anchored to local
// midnight. Directions are left empty; the aggregator derives them.
func NewCalendarEvent(calendar string, raw RawEvent, loc *time.Location) (CalendarEvent, error) {
	start, end, err := bounds(raw, loc)
	if err != nil {
		return CalendarEvent{}, err
	}
	ev := CalendarEvent{
		Calendar: calendar,
		Summary:  raw.Summary,
		FullDay:  raw.AllDay,
		Start:    start,
		End:      end,
		Location: raw.Location,
	}
	if err := Validate(ev); err != nil {
		return CalendarEvent{}, err
	}
	return ev, nil
}

// MealEntry is an entry of the food calendar.
type MealEntry struct {
	Summary string    `json:"summary" validate:"required"`
	Start   time.Time `json:"start" validate:"required"`
	End     time.Time `json:"end" validate:"required,gtefield=Start"`
}

// NewMealEntry validates raw as a full-day meal entry in loc.
func NewMealEntry(raw RawEvent, loc *time.Location) (MealEntry, error) {
	raw.AllDay = true
	start, end, err := bounds(raw, loc)
	if err != nil {
		return MealEntry{}, err
	}
	m := MealEntry{Summary: raw.Summary, Start: start, End: end}
	if err := Validate(m); err != nil {
		return MealEntry{}, err
	}
	return m, nil
}

// DaySnapshot is the events feed payload.
type DaySnapshot struct {
	Timestamp      int64           `json:"timestamp" validate:"required"`
	EventsToday    []CalendarEvent `json:"events_today" validate:"dive"`
	EventsTomorrow []CalendarEvent `json:"events_tomorrow" validate:"dive"`
	MealsToday     []MealEntry     `json:"meals_today" validate:"dive"`
	MealsTomorrow  []MealEntry     `json:"meals_tomorrow" validate:"dive"`
}

// Validate implements the cache payload contract.
func (d DaySnapshot) Validate() error {
	if d.EventsToday == nil || d.EventsTomorrow == nil || d.MealsToday == nil || d.MealsTomorrow == nil {
		return fmt.Errorf("%w: day snapshot is missing a bucket", ErrInvalid)
	}
	return Validate(d)
}

// GeneratedAt returns Timestamp as a time.
func (d DaySnapshot) GeneratedAt() time.Time {
	return time.Unix(d.Timestamp, 0)
}

func bounds(raw RawEvent, loc *time.Location) (time.Time, time.Time, error) {
	if raw.Start.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: event %q has no start", ErrInvalid, raw.UID)
	}
	if raw.End.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: event %q has no end", ErrInvalid, raw.UID)
	}
	if !raw.AllDay {
		return raw.Start.In(loc), raw.End.In(loc), nil
	}
	start := MidnightIn(raw.Start, loc)
	end := MidnightIn(raw.End, loc)
	// A date-only event whose end equals its start still covers that day.
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end, nil
}
