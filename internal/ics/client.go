package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
)

// ErrUnknownCalendar is returned for a calendar id with no configured source.
var ErrUnknownCalendar = errors.New("unknown calendar")

// Client answers "events of calendar X between timeMin and timeMax" on top
// of ICS subscriptions: fetch, parse, then expand recurrences in the window.
type Client struct {
	sources map[string]Source
	fetcher *Fetcher
	loc     *time.Location
	logger  appLog.Logger
}

// NewClient creates a calendar client over the given sources. Occurrences
// are expressed in loc.
func NewClient(sources []Source, fetcher *Fetcher, loc *time.Location, logger appLog.Logger) *Client {
	byID := make(map[string]Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{sources: byID, fetcher: fetcher, loc: loc, logger: logger}
}

// Events returns the occurrences of calendarID overlapping [timeMin, timeMax).
func (c *Client) Events(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]model.RawEvent, error) {
	src, ok := c.sources[calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}

	res, err := c.fetcher.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(src, res.Body, c.logger)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      timeMin,
		RangeEnd:        timeMax,
	}, c.logger)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("calendar events loaded",
		"id", calendarID,
		"parsed", len(parsed),
		"occurrences", len(expanded.Occurrences),
		"truncated", len(expanded.TruncatedEvents),
	)
	return expanded.Occurrences, nil
}
