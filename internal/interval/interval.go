// Package interval generates the time buckets statistics are aggregated
// into. Boundaries are computed in the target timezone's wall-clock time
// and converted back to absolute time, so a "day" spanning a DST
// transition is 23 or 25 hours long instead of a fixed 24.
package interval

import (
	"errors"
	"fmt"
	"time"
)

const (
	IntervalNone  = "none"
	IntervalHour  = "hour"
	IntervalDay   = "day"
	IntervalMonth = "month"
)

// MaxHourBuckets caps hourly enumeration at one leap year of hours.
const MaxHourBuckets = 8784

var (
	ErrInvalidRange    = errors.New("until must be after from")
	ErrInvalidInterval = errors.New("interval must be one of none, hour, day, month")
)

// TimeOfDay is a wall-clock instant within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var tod TimeOfDay

	_, err := fmt.Sscanf(value, "%d:%d", &tod.Hour, &tod.Minute)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", value, err)
	}

	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", value)
	}

	return tod, nil
}

func (tod TimeOfDay) minutes() int {
	return tod.Hour*60 + tod.Minute
}

// Options bounds and shapes one bucket enumeration.
type Options struct {
	From     time.Time
	Until    time.Time
	Interval string

	// Location defaults to UTC.
	Location *time.Location

	// DayStart and DayEnd restrict buckets and rows to the local
	// time-of-day window [DayStart, DayEnd); nil means unbounded.
	DayStart *TimeOfDay
	DayEnd   *TimeOfDay

	// WeekDays restricts buckets and rows to the listed local weekdays;
	// empty means all seven.
	WeekDays []time.Weekday
}

func (opts Options) location() *time.Location {
	if opts.Location == nil {
		return time.UTC
	}

	return opts.Location
}

// IncludesInstant reports whether a raw row's timestamp passes the
// time-of-day and weekday filters. The filter runs per row, not only per
// bucket, so a surviving bucket may still aggregate zero rows.
func (opts Options) IncludesInstant(instant time.Time) bool {
	local := instant.In(opts.location())

	if len(opts.WeekDays) > 0 {
		found := false

		for _, day := range opts.WeekDays {
			if local.Weekday() == day {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	minutes := local.Hour()*60 + local.Minute()

	if opts.DayStart != nil && minutes < opts.DayStart.minutes() {
		return false
	}

	if opts.DayEnd != nil && minutes >= opts.DayEnd.minutes() {
		return false
	}

	return true
}

// Bucket is one aggregation window. Until is exclusive. The trailing
// bucket of every enumeration has Total set and spans the whole range.
type Bucket struct {
	From  time.Time
	Until time.Time
	Total bool
}

// DefaultUntil is midnight at the start of tomorrow in the target
// timezone, the range end used when the caller gives none.
func DefaultUntil(now time.Time, location *time.Location) time.Time {
	local := now.In(location)

	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, location)
}

// Generate enumerates the buckets of [From, Until) in chronological
// order, first and last clipped to the range, plus the total bucket.
func Generate(opts Options) ([]Bucket, error) {
	if !opts.Until.After(opts.From) {
		return nil, ErrInvalidRange
	}

	total := Bucket{From: opts.From, Until: opts.Until, Total: true}

	switch opts.Interval {
	case IntervalNone, "":
		return []Bucket{total}, nil
	case IntervalHour:
		if opts.Until.Sub(opts.From) > MaxHourBuckets*time.Hour {
			return nil, fmt.Errorf("%w: range too wide for hourly buckets", ErrInvalidRange)
		}
	case IntervalDay, IntervalMonth:
	default:
		return nil, ErrInvalidInterval
	}

	location := opts.location()

	var buckets []Bucket

	cursor := opts.From
	for cursor.Before(opts.Until) {
		next := nextBoundary(cursor, opts.Interval, location)
		if next.After(opts.Until) {
			next = opts.Until
		}

		if opts.includesBucket(cursor) {
			buckets = append(buckets, Bucket{From: cursor, Until: next})
		}

		cursor = next
	}

	return append(buckets, total), nil
}

// nextBoundary is the first calendar boundary strictly after cursor,
// computed on local wall-clock fields so DST days keep their 23 or 25
// hour length.
func nextBoundary(cursor time.Time, intervalName string, location *time.Location) time.Time {
	local := cursor.In(location)

	switch intervalName {
	case IntervalHour:
		return time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, location)
	case IntervalDay:
		return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, location)
	default:
		return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, location)
	}
}

// includesBucket applies the weekday filter to day buckets and the full
// row filter to hour buckets. Coarser buckets are never excluded whole;
// their rows are filtered individually.
func (opts Options) includesBucket(start time.Time) bool {
	switch opts.Interval {
	case IntervalHour:
		return opts.IncludesInstant(start)
	case IntervalDay:
		if len(opts.WeekDays) == 0 {
			return true
		}

		local := start.In(opts.location())

		for _, day := range opts.WeekDays {
			if local.Weekday() == day {
				return true
			}
		}

		return false
	default:
		return true
	}
}
