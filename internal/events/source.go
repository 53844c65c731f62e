package events

import (
	"context"
	"fmt"
	"time"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
)

// CalendarClient returns the occurrences of one calendar in a window.
// *ics.Client satisfies it.
type CalendarClient interface {
	Events(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]model.RawEvent, error)
}

// Calendar identifies a calendar to pull and the name to show for it.
type Calendar struct {
	ID   string
	Name string
}

// Source builds the events feed payload: it pulls every calendar for
// today and tomorrow and aggregates the result.
type Source struct {
	client    CalendarClient
	calendars []Calendar
	mealsID   string
	agg       *Aggregator
	logger    appLog.Logger
}

// NewSource creates a Source. mealsID may be empty when no food calendar
// is configured.
func NewSource(client CalendarClient, calendars []Calendar, mealsID string, agg *Aggregator, logger appLog.Logger) *Source {
	return &Source{
		client:    client,
		calendars: calendars,
		mealsID:   mealsID,
		agg:       agg,
		logger:    logger,
	}
}

// Fetch has the cache.FetchFunc shape. Any calendar failure fails the
// whole fetch so a partial day is never persisted.
func (s *Source) Fetch(ctx context.Context, now time.Time) (model.DaySnapshot, error) {
	w := s.agg.window(now)

	cals := make([]CalendarEvents, 0, len(s.calendars))
	for _, c := range s.calendars {
		evs, err := s.client.Events(ctx, c.ID, w.today, w.end)
		if err != nil {
			return model.DaySnapshot{}, fmt.Errorf("calendar %s: %w", c.ID, err)
		}
		cals = append(cals, CalendarEvents{Name: c.Name, Events: evs})
	}

	var food []model.RawEvent
	if s.mealsID != "" {
		evs, err := s.client.Events(ctx, s.mealsID, w.today, w.end)
		if err != nil {
			return model.DaySnapshot{}, fmt.Errorf("meals calendar %s: %w", s.mealsID, err)
		}
		food = evs
	}

	s.logger.Info("events fetched",
		"calendars", len(cals),
		"meals", len(food),
		"range_start", w.today.Format(time.RFC3339),
		"range_end", w.end.Format(time.RFC3339),
	)
	return s.agg.Aggregate(cals, food, now), nil
}
