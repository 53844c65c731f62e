// Package events classifies raw calendar occurrences into the today and
// tomorrow buckets shown on the panel.
package events

import (
	"cmp"
	"net/url"
	"slices"
	"strings"
	"time"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
	"homepanel/internal/observability"
)

// CalendarEvents is the raw output of one calendar, tagged with the name
// shown on the panel.
type CalendarEvents struct {
	Name   string
	Events []model.RawEvent
}

// Directions builds maps links from a fixed origin.
type Directions struct {
	Origin     string
	BaseURL    string
	APIVersion string
}

// For returns the directions link for location, or "" when none applies.
//
//   - empty location: none
//   - location containing a URL scheme (virtual meeting): location as is
//   - location equal to the origin: none
//   - otherwise: <base>?api=<version>&origin=<origin>&destination=<location>
func (d Directions) For(location string) string {
	trimmed := strings.TrimSpace(location)
	switch {
	case trimmed == "":
		return ""
	case strings.Contains(trimmed, "://"):
		return location
	case strings.EqualFold(trimmed, strings.TrimSpace(d.Origin)):
		return ""
	}

	var b strings.Builder
	b.WriteString(d.BaseURL)
	b.WriteString("?api=")
	b.WriteString(url.QueryEscape(d.APIVersion))
	b.WriteString("&origin=")
	b.WriteString(url.QueryEscape(d.Origin))
	b.WriteString("&destination=")
	b.WriteString(url.QueryEscape(trimmed))
	return b.String()
}

// Aggregator turns raw occurrences into a DaySnapshot. Malformed entries
// are logged, counted and skipped.
type Aggregator struct {
	loc     *time.Location
	dirs    Directions
	logger  appLog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator classifying days in loc.
func NewAggregator(loc *time.Location, dirs Directions, logger appLog.Logger, metrics *observability.Metrics) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if metrics == nil {
		metrics = observability.NewUnregisteredMetrics()
	}
	return &Aggregator{loc: loc, dirs: dirs, logger: logger, metrics: metrics}
}

// Aggregate is a convenience wrapper around an Aggregator that discards logs.
func Aggregate(calendars []CalendarEvents, food []model.RawEvent, now time.Time, loc *time.Location, dirs Directions) model.DaySnapshot {
	return NewAggregator(loc, dirs, appLog.Discard(), nil).Aggregate(calendars, food, now)
}

// window holds the three local midnights bounding today and tomorrow.
type window struct {
	today, tomorrow, end time.Time
}

func (a *Aggregator) window(now time.Time) window {
	today := model.MidnightIn(now.In(a.loc), a.loc)
	return window{
		today:    today,
		tomorrow: today.AddDate(0, 0, 1),
		end:      today.AddDate(0, 0, 2),
	}
}

// fullDayOn reports whether a full-day span [start, end) covers day.
func fullDayOn(start, end, day time.Time) bool {
	return !start.After(day) && day.Before(end)
}

// timedIn reports whether start falls inside [from, to).
func timedIn(start, from, to time.Time) bool {
	return !start.Before(from) && start.Before(to)
}

// Aggregate classifies calendars and food relative to now. Every bucket of
// the result is non-nil and sorted.
func (a *Aggregator) Aggregate(calendars []CalendarEvents, food []model.RawEvent, now time.Time) model.DaySnapshot {
	w := a.window(now)
	snap := model.DaySnapshot{
		Timestamp:      now.Unix(),
		EventsToday:    make([]model.CalendarEvent, 0),
		EventsTomorrow: make([]model.CalendarEvent, 0),
		MealsToday:     make([]model.MealEntry, 0),
		MealsTomorrow:  make([]model.MealEntry, 0),
	}

	for _, cal := range calendars {
		for _, raw := range cal.Events {
			ev, err := model.NewCalendarEvent(cal.Name, raw, a.loc)
			if err != nil {
				a.skip(cal.Name, raw, err)
				continue
			}
			ev.Directions = a.dirs.For(ev.Location)

			if ev.FullDay {
				if fullDayOn(ev.Start, ev.End, w.today) {
					snap.EventsToday = append(snap.EventsToday, ev)
				}
				if fullDayOn(ev.Start, ev.End, w.tomorrow) {
					snap.EventsTomorrow = append(snap.EventsTomorrow, ev)
				}
				continue
			}
			switch {
			case timedIn(ev.Start, w.today, w.tomorrow):
				snap.EventsToday = append(snap.EventsToday, ev)
			case timedIn(ev.Start, w.tomorrow, w.end):
				snap.EventsTomorrow = append(snap.EventsTomorrow, ev)
			}
		}
	}

	for _, raw := range food {
		m, err := model.NewMealEntry(raw, a.loc)
		if err != nil {
			a.skip("meals", raw, err)
			continue
		}
		if fullDayOn(m.Start, m.End, w.today) {
			snap.MealsToday = append(snap.MealsToday, m)
		}
		if fullDayOn(m.Start, m.End, w.tomorrow) {
			snap.MealsTomorrow = append(snap.MealsTomorrow, m)
		}
	}

	SortEvents(snap.EventsToday)
	SortEvents(snap.EventsTomorrow)
	sortMeals(snap.MealsToday)
	sortMeals(snap.MealsTomorrow)

	a.logger.Debug("events aggregated",
		"today", w.today.Format(time.DateOnly),
		"events_today", len(snap.EventsToday),
		"events_tomorrow", len(snap.EventsTomorrow),
		"meals_today", len(snap.MealsToday),
		"meals_tomorrow", len(snap.MealsTomorrow),
	)
	return snap
}

func (a *Aggregator) skip(calendar string, raw model.RawEvent, err error) {
	a.metrics.SkippedEvents.WithLabelValues(calendar).Inc()
	a.logger.Warn("skipping malformed event",
		"calendar", calendar,
		"uid", raw.UID,
		"summary", raw.Summary,
		"err", err,
	)
}

// SortEvents orders events full-day first, then by start, summary and
// calendar name.
func SortEvents(evs []model.CalendarEvent) {
	slices.SortStableFunc(evs, func(x, y model.CalendarEvent) int {
		if x.FullDay != y.FullDay {
			if x.FullDay {
				return -1
			}
			return 1
		}
		if c := x.Start.Compare(y.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Summary, y.Summary); c != 0 {
			return c
		}
		return cmp.Compare(x.Calendar, y.Calendar)
	})
}

func sortMeals(ms []model.MealEntry) {
	slices.SortStableFunc(ms, func(x, y model.MealEntry) int {
		if c := x.Start.Compare(y.Start); c != 0 {
			return c
		}
		return cmp.Compare(x.Summary, y.Summary)
	})
}
