// Package window maps commit timestamps onto the recurring daily window of a
// study. All math is done on absolute UTC instants: for each candidate
// calendar date the window is [midnightUTC + startOffset, midnightUTC +
// endOffset], which stays well-defined when endOffset runs past the next
// local midnight. Time-of-day comparisons are deliberately avoided.
package window

import (
	"fmt"
	"time"
)

const secondsPerDay = 86400

// Resolution is the accepted outcome of Resolve: the calendar date that owns
// the commit plus the absolute bounds of that date's window.
type Resolution struct {
	CalendarDate   string // YYYY-MM-DD in the local civil timezone
	MidnightUTC    time.Time
	WindowStartUTC time.Time
	WindowEndUTC   time.Time
}

// Resolve attributes commitUTC to a session date. startOffset and endOffset
// are seconds from local midnight; localOffset is the fixed UTC offset of the
// deployment's civil timezone in seconds. The window is inclusive at both
// ends. Returns false when the commit falls outside the window on both
// candidate dates.
func Resolve(commitUTC time.Time, startOffset, endOffset, localOffset int) (Resolution, bool) {
	commitUTC = commitUTC.UTC()

	// Candidates: the commit's local civil date and the day before. A window
	// shorter than 24h can only start on one of these two dates, so the
	// search never looks further back.
	today := CivilDate(commitUTC, localOffset)
	for _, date := range [2]time.Time{today, today.AddDate(0, 0, -1)} {
		midnight := midnightUTC(date, localOffset)
		start := midnight.Add(time.Duration(startOffset) * time.Second)
		end := midnight.Add(time.Duration(endOffset) * time.Second)

		if !commitUTC.Before(start) && !commitUTC.After(end) {
			return Resolution{
				CalendarDate:   date.Format("2006-01-02"),
				MidnightUTC:    midnight,
				WindowStartUTC: start,
				WindowEndUTC:   end,
			}, true
		}
	}

	return Resolution{}, false
}

// CivilDate returns the local civil date of t (at 00:00 UTC, date fields only).
func CivilDate(t time.Time, localOffset int) time.Time {
	local := t.UTC().Add(time.Duration(localOffset) * time.Second)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// MidnightUTC returns the UTC instant of the given YYYY-MM-DD date's local
// midnight.
func MidnightUTC(calendarDate string, localOffset int) (time.Time, error) {
	date, err := time.Parse("2006-01-02", calendarDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q: %w", calendarDate, err)
	}
	return midnightUTC(date, localOffset), nil
}

func midnightUTC(date time.Time, localOffset int) time.Time {
	return date.Add(-time.Duration(localOffset) * time.Second)
}

// ValidateOffsets checks a study's window configuration. Windows of 24 hours
// or more, or ending more than a day after they start, cannot recur daily
// without overlapping themselves and are rejected at study creation.
func ValidateOffsets(startOffset, endOffset int) error {
	if startOffset < 0 || startOffset >= secondsPerDay {
		return fmt.Errorf("start offset must be in [0, 86400), got %d", startOffset)
	}
	if endOffset <= startOffset {
		return fmt.Errorf("end offset %d must be greater than start offset %d", endOffset, startOffset)
	}
	if endOffset >= startOffset+secondsPerDay {
		return fmt.Errorf("window must be shorter than 24 hours, got %d seconds", endOffset-startOffset)
	}
	return nil
}
