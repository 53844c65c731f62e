// Package present turns cached snapshots into the strings and rows the
// panel renders. Nothing here does I/O.
package present

import (
	"strings"
	"time"

	"homepanel/internal/model"
)

const (
	clockLayout       = "15:04"
	lastUpdatedLayout = "01-02 15:04"
)

// Label rewrites any location containing Match into Label.
type Label struct {
	Match string
	Label string
}

// Formatter renders timestamps in a fixed zone and shortens known
// locations.
type Formatter struct {
	loc    *time.Location
	labels []Label
}

// NewFormatter creates a Formatter. Labels are tried in order and empty
// matches are ignored.
func NewFormatter(loc *time.Location, labels []Label) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	kept := make([]Label, 0, len(labels))
	for _, l := range labels {
		if strings.TrimSpace(l.Match) == "" {
			continue
		}
		kept = append(kept, Label{Match: strings.ToLower(l.Match), Label: l.Label})
	}
	return &Formatter{loc: loc, labels: kept}
}

// Clock formats t as HH:MM in the formatter's zone.
func (f *Formatter) Clock(t time.Time) string {
	return t.In(f.loc).Format(clockLayout)
}

// ClockUnix formats epoch seconds as HH:MM.
func (f *Formatter) ClockUnix(ts int64) string {
	return f.Clock(time.Unix(ts, 0))
}

// LastUpdated formats t as MM-DD HH:MM.
func (f *Formatter) LastUpdated(t time.Time) string {
	return t.In(f.loc).Format(lastUpdatedLayout)
}

// Location returns the friendly label of the first match, or location
// unchanged.
func (f *Formatter) Location(location string) string {
	if location == "" {
		return ""
	}
	lower := strings.ToLower(location)
	for _, l := range f.labels {
		if strings.Contains(lower, l.Match) {
			return l.Label
		}
	}
	return location
}

// CurrentView is the display form of model.CurrentWeather.
type CurrentView struct {
	Condition     string `json:"condition"`
	Icon          string `json:"icon"`
	Emoji         string `json:"emoji"`
	Temperature   int    `json:"temperature"`
	WindSpeed     int    `json:"wind_speed"`
	WindDeg       int    `json:"wind_deg"`
	CloudCoverage int    `json:"cloud_coverage"`
	Rain          *int   `json:"rain,omitempty"`
	Snow          *int   `json:"snow,omitempty"`
}

// HourView is one forecast row.
type HourView struct {
	Time                string `json:"time"`
	Condition           string `json:"condition"`
	Icon                string `json:"icon"`
	Emoji               string `json:"emoji"`
	Temperature         int    `json:"temperature"`
	PrecipitationChance int    `json:"precipitation_chance"`
}

// WeatherView is what the weather panel renders.
type WeatherView struct {
	LastUpdated string      `json:"last_updated"`
	Current     CurrentView `json:"current"`
	Forecast    []HourView  `json:"forecast"`
}

// Weather builds the weather panel view.
func (f *Formatter) Weather(s model.WeatherSnapshot) WeatherView {
	c := s.Current
	v := WeatherView{
		LastUpdated: f.LastUpdated(s.FetchedAt()),
		Current: CurrentView{
			Condition:     c.Condition,
			Icon:          c.Icon,
			Emoji:         Icon(c.Icon),
			Temperature:   c.Temperature,
			WindSpeed:     c.WindSpeed,
			WindDeg:       c.WindDeg,
			CloudCoverage: c.CloudCoverage,
			Rain:          c.Rain,
			Snow:          c.Snow,
		},
		Forecast: make([]HourView, 0, len(s.Forecast)),
	}
	for _, h := range s.Forecast {
		v.Forecast = append(v.Forecast, HourView{
			Time:                f.ClockUnix(h.Timestamp),
			Condition:           h.Condition,
			Icon:                h.Icon,
			Emoji:               Icon(h.Icon),
			Temperature:         h.Temperature,
			PrecipitationChance: h.PrecipitationChance,
		})
	}
	return v
}

// EventView is one calendar row. Start and End are empty for full-day
// events.
type EventView struct {
	Calendar   string `json:"calendar"`
	Summary    string `json:"summary"`
	FullDay    bool   `json:"full_day"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	Location   string `json:"location,omitempty"`
	Directions string `json:"directions,omitempty"`
}

// MealView is one food calendar row.
type MealView struct {
	Summary string `json:"summary"`
}

// EventsView is what the events panel renders.
type EventsView struct {
	LastUpdated   string      `json:"last_updated"`
	Today         []EventView `json:"today"`
	Tomorrow      []EventView `json:"tomorrow"`
	MealsToday    []MealView  `json:"meals_today"`
	MealsTomorrow []MealView  `json:"meals_tomorrow"`
}

// Events builds the events panel view. Order is kept from the snapshot.
func (f *Formatter) Events(s model.DaySnapshot) EventsView {
	return EventsView{
		LastUpdated:   f.LastUpdated(s.GeneratedAt()),
		Today:         f.eventRows(s.EventsToday),
		Tomorrow:      f.eventRows(s.EventsTomorrow),
		MealsToday:    mealRows(s.MealsToday),
		MealsTomorrow: mealRows(s.MealsTomorrow),
	}
}

func (f *Formatter) eventRows(evs []model.CalendarEvent) []EventView {
	out := make([]EventView, 0, len(evs))
	for _, ev := range evs {
		row := EventView{
			Calendar:   ev.Calendar,
			Summary:    ev.Summary,
			FullDay:    ev.FullDay,
			Location:   f.Location(ev.Location),
			Directions: ev.Directions,
		}
		if !ev.FullDay {
			row.Start = f.Clock(ev.Start)
			row.End = f.Clock(ev.End)
		}
		out = append(out, row)
	}
	return out
}

func mealRows(ms []model.MealEntry) []MealView {
	out := make([]MealView, 0, len(ms))
	for _, m := range ms {
		out = append(out, MealView{Summary: m.Summary})
	}
	return out
}
