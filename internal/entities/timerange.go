package entities

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "chargeslot/internal/errors"
)

// TimeRange is an hour-granular window parsed from the "H:MM - H:MM" strings
// the booking flow passes around. Start is inclusive, End exclusive.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeRange parses strings like "9:00 - 10:00". Malformed input is an
// InvalidInput error; it is rejected here at the boundary, never deeper in
// the matching logic.
func ParseTimeRange(s string) (TimeRange, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return TimeRange{}, apperrors.InvalidInputf("time range %q must look like \"9:00 - 10:00\"", s)
	}
	start, err := parseHour(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := parseHour(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	if start >= end {
		return TimeRange{}, apperrors.InvalidInputf("time range %q must end after it starts", s)
	}
	if start > 23 {
		return TimeRange{}, apperrors.InvalidInputf("time range %q starts past the end of the day", s)
	}
	return TimeRange{Start: start, End: end}, nil
}

// RangeFromHour turns a grid hour label ("09:00") back into its one-hour
// booking range.
func RangeFromHour(hour string) (TimeRange, error) {
	h, err := parseHour(hour)
	if err != nil {
		return TimeRange{}, err
	}
	if h > 23 {
		return TimeRange{}, apperrors.InvalidInputf("hour %q is out of range", hour)
	}
	return TimeRange{Start: h, End: h + 1}, nil
}

func parseHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, _, ok := strings.Cut(s, ":")
	if !ok {
		return 0, apperrors.InvalidInputf("%q is not an H:MM time", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, apperrors.InvalidInputf("%q is not a valid hour", s)
	}
	return h, nil
}

// Hour is the zero-padded grid label of the range's starting hour.
func (t TimeRange) Hour() string {
	return fmt.Sprintf("%02d:00", t.Start)
}

func (t TimeRange) String() string {
	return fmt.Sprintf("%d:00 - %d:00", t.Start, t.End)
}

// Overlaps reports whether the freed range falls inside this preferred
// window. The boundary rule is kept exactly as the booking flow has always
// computed it: the freed start inside [Start, End), or the freed end inside
// (Start, End]. A freed slot whose end clips the window still matches even
// when its start does not fit.
func (t TimeRange) Overlaps(freed TimeRange) bool {
	return (freed.Start >= t.Start && freed.Start < t.End) ||
		(freed.End > t.Start && freed.End <= t.End)
}
