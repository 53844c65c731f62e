package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the half-open window [RangeStart, RangeEnd)
	// an occurrence must overlap to be returned.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid extremely large
	// expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and
// information about truncation.
type ExpandResult struct {
	Occurrences []model.RawEvent
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete occurrences inside
// the configured window. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics (date kept, anchored at local midnight)
//
// Timed occurrences are converted into ExpandConfig.DisplayLocation.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig, logger appLog.Logger) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID. Order of first appearance is
	// kept so output is deterministic.
	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	result.Occurrences = make([]model.RawEvent, 0)

	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg, logger)
			if hitCap {
				truncated = true
			}
			result.Occurrences = append(result.Occurrences, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			logger.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig, logger appLog.Logger) ([]model.RawEvent, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg, logger)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.RawEvent {
	start, end := ev.Start, ev.End

	// Apply any override whose RECURRENCE-ID matches this start.
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end, ev = o.Start, o.End, o
	}

	occ := makeOccurrence(ev, start, end, cfg.DisplayLocation)
	if !overlaps(occ.Start, occ.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.RawEvent{occ}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig, logger appLog.Logger) ([]model.RawEvent, bool) {
	out := make([]model.RawEvent, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		logger.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the search so occurrences that began before the window but
	// still overlap it are found. Date-only events also get a day of slack
	// on both sides since their zone is only applied after expansion.
	dur := ev.End.Sub(ev.Start)
	lookback, lookahead := dur, time.Duration(0)
	if ev.AllDay {
		lookback += 24 * time.Hour
		lookahead = 24 * time.Hour
	}
	loc := ev.Start.Location()
	occTimes := set.Between(cfg.RangeStart.Add(-lookback).In(loc), cfg.RangeEnd.Add(lookahead).In(loc), true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		start, end, base := occStart, occStart.Add(dur), ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			start, end, base = o.Start, o.End, o
		}

		occ := makeOccurrence(base, start, end, cfg.DisplayLocation)
		if overlaps(occ.Start, occ.End, cfg.RangeStart, cfg.RangeEnd) {
			out = append(out, occ)
		}
	}

	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence converts a (possibly overridden) ParsedEvent + specific
// start/end into a RawEvent expressed in displayLoc.
func makeOccurrence(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.RawEvent {
	if ev.AllDay {
		start = model.MidnightIn(start, displayLoc)
		end = model.MidnightIn(end, displayLoc)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else {
		start = start.In(displayLoc)
		end = end.In(displayLoc)
	}

	return model.RawEvent{
		Calendar:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: start.Format(time.RFC3339),
		Summary:     ev.Summary,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
// Zero-length items count when they start inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aStart.Before(bEnd) {
		return false
	}
	return aEnd.After(bStart) || !aStart.Before(bStart)
}
