package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid")

// validate is safe for concurrent use and caches struct metadata, so a
// single instance is shared.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its `validate` struct tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RawEvent represents a single concrete calendar entry as delivered by a
// calendar client (after recurrence expansion), before classification.
type RawEvent struct {
	Calendar string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	// AllDay is true for date-only bounds.
	AllDay bool

	Start time.Time
	End   time.Time
}

// MidnightIn returns local midnight in loc of the calendar date carried by
// t in its own location. Date-only values keep their date regardless of the
// zone they were parsed in.
func MidnightIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
