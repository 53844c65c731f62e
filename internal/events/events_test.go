package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
	"homepanel/internal/observability"
)

var testDirections = Directions{
	Origin:     "1 Home St",
	BaseURL:    "https://www.google.com/maps/dir/",
	APIVersion: "1",
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func timed(summary string, start time.Time, d time.Duration) model.RawEvent {
	return model.RawEvent{UID: summary, Summary: summary, Start: start, End: start.Add(d)}
}

func allDay(summary string, y int, m time.Month, d, days int) model.RawEvent {
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return model.RawEvent{UID: summary, Summary: summary, AllDay: true, Start: start, End: start.AddDate(0, 0, days)}
}

func summaries(evs []model.CalendarEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Summary)
	}
	return out
}

func mealSummaries(ms []model.MealEntry) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Summary)
	}
	return out
}

func TestAggregate_Classification(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	today := time.Date(2025, 5, 8, 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	cal := CalendarEvents{Name: "Family", Events: []model.RawEvent{
		allDay("Today only", 2025, 5, 8, 1),
		allDay("Both days", 2025, 5, 8, 2),
		allDay("Ended yesterday", 2025, 5, 7, 1),
		allDay("Tomorrow only", 2025, 5, 9, 1),
		timed("Last minute today", tomorrow.Add(-time.Minute), time.Minute),
		timed("Tomorrow midnight", tomorrow, time.Hour),
		timed("Day after", today.AddDate(0, 0, 2), time.Hour),
		timed("Yesterday late", today.Add(-time.Minute), 2*time.Hour),
		timed("Today midnight", today, 0),
	}}

	snap := Aggregate([]CalendarEvents{cal}, nil, now, loc, testDirections)

	assert.Equal(t, []string{"Both days", "Today only", "Today midnight", "Last minute today"}, summaries(snap.EventsToday))
	assert.Equal(t, []string{"Both days", "Tomorrow only", "Tomorrow midnight"}, summaries(snap.EventsTomorrow))
	assert.Equal(t, now.Unix(), snap.Timestamp)
	assert.NoError(t, snap.Validate())

	for _, ev := range snap.EventsToday {
		assert.Equal(t, "Family", ev.Calendar)
		if ev.FullDay {
			assert.Equal(t, today, ev.Start)
		}
	}
}

func TestAggregate_FullDayFirst(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	today := time.Date(2025, 5, 8, 0, 0, 0, 0, loc)

	cal := CalendarEvents{Name: "Family", Events: []model.RawEvent{
		timed("Breakfast", today, 30*time.Minute),
		timed("Zumba", today.Add(9*time.Hour), time.Hour),
		timed("Yoga", today.Add(9*time.Hour), time.Hour),
		allDay("Zoo trip", 2025, 5, 8, 1),
		allDay("Anniversary", 2025, 5, 8, 1),
	}}

	snap := Aggregate([]CalendarEvents{cal}, nil, now, loc, testDirections)
	assert.Equal(t, []string{"Anniversary", "Zoo trip", "Breakfast", "Yoga", "Zumba"}, summaries(snap.EventsToday))
}

func TestAggregate_CalendarTieBreak(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	start := time.Date(2025, 5, 8, 12, 0, 0, 0, loc)

	snap := Aggregate([]CalendarEvents{
		{Name: "Work", Events: []model.RawEvent{timed("Lunch", start, time.Hour)}},
		{Name: "Family", Events: []model.RawEvent{timed("Lunch", start, time.Hour)}},
	}, nil, now, loc, testDirections)

	require.Len(t, snap.EventsToday, 2)
	assert.Equal(t, "Family", snap.EventsToday[0].Calendar)
	assert.Equal(t, "Work", snap.EventsToday[1].Calendar)
}

func TestAggregate_DSTDay(t *testing.T) {
	loc := chicago(t)
	// 2025-03-09 is 23 hours long in Chicago.
	now := time.Date(2025, 3, 9, 8, 0, 0, 0, loc)
	late := time.Date(2025, 3, 9, 23, 30, 0, 0, loc)
	next := time.Date(2025, 3, 10, 0, 30, 0, 0, loc)

	snap := Aggregate([]CalendarEvents{{Name: "Family", Events: []model.RawEvent{
		timed("Late", late, 15*time.Minute),
		timed("Next", next, 15*time.Minute),
	}}}, nil, now, loc, testDirections)

	assert.Equal(t, []string{"Late"}, summaries(snap.EventsToday))
	assert.Equal(t, []string{"Next"}, summaries(snap.EventsTomorrow))
}

func TestAggregate_Meals(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 20, 0, 0, 0, loc)

	food := []model.RawEvent{
		allDay("Tacos", 2025, 5, 8, 1),
		allDay("Pasta", 2025, 5, 9, 1),
		allDay("Leftovers", 2025, 5, 7, 1),
		// timed entries on the food calendar still count as whole days
		timed("Soup", time.Date(2025, 5, 9, 18, 0, 0, 0, loc), time.Hour),
	}

	snap := Aggregate(nil, food, now, loc, testDirections)
	assert.Equal(t, []string{"Tacos"}, mealSummaries(snap.MealsToday))
	assert.Equal(t, []string{"Pasta", "Soup"}, mealSummaries(snap.MealsTomorrow))
	assert.Empty(t, snap.EventsToday)
}

func TestAggregate_EmptyBucketsAreNonNil(t *testing.T) {
	loc := chicago(t)
	snap := Aggregate(nil, nil, time.Date(2025, 5, 8, 10, 0, 0, 0, loc), loc, testDirections)

	assert.NotNil(t, snap.EventsToday)
	assert.NotNil(t, snap.EventsTomorrow)
	assert.NotNil(t, snap.MealsToday)
	assert.NotNil(t, snap.MealsTomorrow)
	assert.NoError(t, snap.Validate())
}

func TestAggregate_SkipsMalformed(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	start := time.Date(2025, 5, 8, 12, 0, 0, 0, loc)
	metrics := observability.NewUnregisteredMetrics()
	agg := NewAggregator(loc, testDirections, appLog.Discard(), metrics)

	cal := CalendarEvents{Name: "Family", Events: []model.RawEvent{
		{UID: "no-summary", Start: start, End: start.Add(time.Hour)},
		{UID: "no-start", Summary: "No start", End: start},
		{UID: "no-end", Summary: "No end", Start: start},
		{UID: "backwards", Summary: "Backwards", Start: start, End: start.Add(-time.Hour)},
		timed("Valid", start, time.Hour),
	}}
	food := []model.RawEvent{{UID: "no-summary-meal", Start: start, End: start}}

	snap := agg.Aggregate([]CalendarEvents{cal}, food, now)

	assert.Equal(t, []string{"Valid"}, summaries(snap.EventsToday))
	assert.Empty(t, snap.MealsToday)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.SkippedEvents.WithLabelValues("Family")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SkippedEvents.WithLabelValues("meals")), 0)
}

func TestAggregate_DirectionsAttached(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	start := time.Date(2025, 5, 8, 12, 0, 0, 0, loc)

	home := timed("At home", start, time.Hour)
	home.Location = "1 Home St"
	call := timed("Call", start.Add(time.Hour), time.Hour)
	call.Location = "https://meet.example.com/abc"
	away := timed("Away", start.Add(2*time.Hour), time.Hour)
	away.Location = "500 Market St, Springfield"

	snap := Aggregate([]CalendarEvents{{Name: "Family", Events: []model.RawEvent{home, call, away}}}, nil, now, loc, testDirections)
	require.Len(t, snap.EventsToday, 3)

	assert.Empty(t, snap.EventsToday[0].Directions)
	assert.Equal(t, "https://meet.example.com/abc", snap.EventsToday[1].Directions)
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&origin=1+Home+St&destination=500+Market+St%2C+Springfield",
		snap.EventsToday[2].Directions)
}

func TestDirections_For(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"origin", "1 Home St", ""},
		{"origin different case", "1 HOME ST", ""},
		{"virtual https", "https://zoom.us/j/123", "https://zoom.us/j/123"},
		{"virtual other scheme", "teams://meeting/1", "teams://meeting/1"},
		{"virtual keeps surrounding spaces", " https://zoom.us/j/123 ", " https://zoom.us/j/123 "},
		{"address trimmed", "  Library ", "https://www.google.com/maps/dir/?api=1&origin=1+Home+St&destination=Library"},
		{"address", "Library", "https://www.google.com/maps/dir/?api=1&origin=1+Home+St&destination=Library"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testDirections.For(tt.location))
		})
	}
}

func TestSortEvents_Stable(t *testing.T) {
	at := time.Date(2025, 5, 8, 9, 0, 0, 0, time.UTC)
	evs := []model.CalendarEvent{
		{Calendar: "A", Summary: "Same", Start: at, End: at, Location: "first"},
		{Calendar: "A", Summary: "Same", Start: at, End: at, Location: "second"},
	}
	SortEvents(evs)
	assert.Equal(t, "first", evs[0].Location)
	assert.Equal(t, "second", evs[1].Location)
}

// --- source ---

type fakeCalendars struct {
	events map[string][]model.RawEvent
	fail   map[string]error
	calls  []string
	from   time.Time
	to     time.Time
}

func (f *fakeCalendars) Events(_ context.Context, id string, timeMin, timeMax time.Time) ([]model.RawEvent, error) {
	f.calls = append(f.calls, id)
	f.from, f.to = timeMin, timeMax
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	return f.events[id], nil
}

func TestSource_Fetch(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2025, 5, 8, 10, 0, 0, 0, loc)
	client := &fakeCalendars{events: map[string][]model.RawEvent{
		"family": {timed("Dentist", time.Date(2025, 5, 8, 15, 0, 0, 0, loc), time.Hour)},
		"work":   {timed("Review", time.Date(2025, 5, 9, 9, 0, 0, 0, loc), time.Hour)},
		"meals":  {allDay("Tacos", 2025, 5, 8, 1)},
	}}
	agg := NewAggregator(loc, testDirections, appLog.Discard(), nil)
	src := NewSource(client, []Calendar{{ID: "family", Name: "Family"}, {ID: "work", Name: "Work"}}, "meals", agg, appLog.Discard())

	snap, err := src.Fetch(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"family", "work", "meals"}, client.calls)
	assert.Equal(t, time.Date(2025, 5, 8, 0, 0, 0, 0, loc), client.from)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, loc), client.to)

	assert.Equal(t, []string{"Dentist"}, summaries(snap.EventsToday))
	assert.Equal(t, "Family", snap.EventsToday[0].Calendar)
	assert.Equal(t, []string{"Review"}, summaries(snap.EventsTomorrow))
	assert.Equal(t, []string{"Tacos"}, mealSummaries(snap.MealsToday))
	assert.NoError(t, snap.Validate())
}

func TestSource_FetchFailsOnAnyCalendarError(t *testing.T) {
	loc := chicago(t)
	boom := errors.New("boom")
	client := &fakeCalendars{fail: map[string]error{"work": boom}}
	agg := NewAggregator(loc, testDirections, appLog.Discard(), nil)
	src := NewSource(client, []Calendar{{ID: "family", Name: "Family"}, {ID: "work", Name: "Work"}}, "", agg, appLog.Discard())

	_, err := src.Fetch(context.Background(), time.Date(2025, 5, 8, 10, 0, 0, 0, loc))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "work")
}

func TestSource_FetchFailsOnMealsError(t *testing.T) {
	loc := chicago(t)
	boom := errors.New("boom")
	client := &fakeCalendars{fail: map[string]error{"meals": boom}}
	agg := NewAggregator(loc, testDirections, appLog.Discard(), nil)
	src := NewSource(client, nil, "meals", agg, appLog.Discard())

	_, err := src.Fetch(context.Background(), time.Date(2025, 5, 8, 10, 0, 0, 0, loc))
	assert.ErrorIs(t, err, boom)
}
