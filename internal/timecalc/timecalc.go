// Package timecalc turns a target timestamp into the "time remaining"
// breakdown shown next to every event.
//
// The calendar model is intentionally coarse: a year is always 365 days and a
// month is always 30 days. Displayed strings depend on these exact constants.
package timecalc

import (
	"strconv"
	"strings"
	"time"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour

	daysPerYear  = 365
	daysPerMonth = 30
)

// Remaining is the decomposition of |target - now|. All magnitudes are
// non-negative; IsPast tells which side of now the target lies on.
type Remaining struct {
	Years   int64 `json:"years"`
	Months  int64 `json:"months"`
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	IsPast  bool  `json:"is_past"`
}

// IsZero reports whether every magnitude field is zero.
func (r Remaining) IsZero() bool {
	return r.Years == 0 && r.Months == 0 && r.Days == 0 &&
		r.Hours == 0 && r.Minutes == 0 && r.Seconds == 0
}

// Compute returns the breakdown between targetMillis and nowMillis. Every
// pair of inputs is valid: the distance is taken in uint64, so it cannot
// overflow even between math.MinInt64 and math.MaxInt64.
func Compute(targetMillis, nowMillis int64) Remaining {
	isPast := targetMillis < nowMillis

	// Two's-complement subtraction in uint64 yields the exact distance.
	var delta uint64
	if isPast {
		delta = uint64(nowMillis) - uint64(targetMillis)
	} else {
		delta = uint64(targetMillis) - uint64(nowMillis)
	}

	totalDays := delta / msPerDay
	afterYears := totalDays % daysPerYear

	return Remaining{
		Years:   int64(totalDays / daysPerYear),
		Months:  int64(afterYears / daysPerMonth),
		Days:    int64(afterYears % daysPerMonth),
		Hours:   int64((delta / msPerHour) % 24),
		Minutes: int64((delta / msPerMinute) % 60),
		Seconds: int64((delta / msPerSecond) % 60),
		IsPast:  isPast,
	}
}

// Format renders r as e.g. "1 year 2 months 3 hours". Zero components are
// skipped. Seconds are only shown when includeSeconds is set.
func Format(r Remaining, includeSeconds bool) string {
	parts := make([]string, 0, 6)
	parts = appendUnit(parts, r.Years, "year")
	parts = appendUnit(parts, r.Months, "month")
	parts = appendUnit(parts, r.Days, "day")
	parts = appendUnit(parts, r.Hours, "hour")
	parts = appendUnit(parts, r.Minutes, "minute")
	if includeSeconds {
		parts = appendUnit(parts, r.Seconds, "second")
	}

	if len(parts) == 0 {
		if r.IsPast {
			return "Event has passed"
		}
		return "Less than a second"
	}

	text := strings.Join(parts, " ")
	if r.IsPast {
		return "Passed " + text
	}
	return text
}

func appendUnit(parts []string, n int64, unit string) []string {
	if n <= 0 {
		return parts
	}
	if n != 1 {
		unit += "s"
	}
	return append(parts, strconv.FormatInt(n, 10)+" "+unit)
}

// Calculator binds Compute to a clock. A nil Now uses the wall clock.
type Calculator struct {
	Now func() time.Time
}

// NowMillis returns the calculator's current time in milliseconds.
func (c Calculator) NowMillis() int64 {
	if c.Now == nil {
		return time.Now().UnixMilli()
	}
	return c.Now().UnixMilli()
}

// Until computes the breakdown from the calculator's current time.
func (c Calculator) Until(targetMillis int64) Remaining {
	return Compute(targetMillis, c.NowMillis())
}

// DateTimeLayout is the display layout for event dates ("Mar 05, 2027 at 06:30 PM").
const DateTimeLayout = "Jan 02, 2006 at 03:04 PM"

// FormatDateTime renders ms in loc using DateTimeLayout. A nil loc means
// time.Local.
func FormatDateTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(DateTimeLayout)
}
