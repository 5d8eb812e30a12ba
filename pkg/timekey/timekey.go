// Package timekey derives the quarter-hour local-time bucket keys used to
// join energy readings against spot prices.
//
// The two time series disagree about what their timestamps mean: spot price
// timestamps are true UTC, while energy readings were migrated from a local
// database that stamped local Swedish wall-clock time with a UTC suffix. The
// reading's face value (its calendar/clock digits) therefore already IS local
// time and must never be offset-shifted, while price timestamps must be
// shifted from UTC into CET/CEST before keying. Both sides produce keys of
// the form "2006-01-02T15:04" floored to the quarter hour so a plain map
// lookup joins them.
package timekey

import (
	"fmt"
	"strings"
	"time"
)

const (
	// KeyLayout is the bucket key format shared by both sources.
	KeyLayout = "2006-01-02T15:04"

	// FaceLayout is the storage format for face-value timestamps.
	FaceLayout = "2006-01-02T15:04:05Z"
)

// UTCOffsetHours returns the Swedish UTC offset (2 during CEST, 1 during CET)
// for the given UTC instant. CEST runs from 01:00 UTC on the last Sunday of
// March until 01:00 UTC on the last Sunday of October; the range is half-open
// so both boundary instants are standard time on the autumn side and summer
// time strictly inside. The rule is applied uniformly to every year; no
// historical rule changes are modeled.
func UTCOffsetHours(t time.Time) int {
	t = t.UTC()
	year := t.Year()
	start := time.Date(year, time.March, lastSunday(year, time.March), 1, 0, 0, 0, time.UTC)
	end := time.Date(year, time.October, lastSunday(year, time.October), 1, 0, 0, 0, time.UTC)
	if !t.Before(start) && t.Before(end) {
		return 2
	}
	return 1
}

// lastSunday returns the day-of-month of the final Sunday of the month:
// take the month's last calendar day and walk backward to the nearest Sunday.
func lastSunday(year int, month time.Month) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return last.Day() - int(last.Weekday())
}

// PriceBucketKey converts a true-UTC price timestamp into its local-time
// quarter-hour bucket key.
func PriceBucketKey(ts time.Time) string {
	utc := ts.UTC()
	local := utc.Add(time.Duration(UTCOffsetHours(utc)) * time.Hour)
	return local.Truncate(15 * time.Minute).Format(KeyLayout)
}

// FaceTime is a stored reading timestamp whose calendar/clock digits are
// local time even though the stored value carries a UTC suffix. It is read
// digit for digit; applying an offset to it would double-shift the data.
type FaceTime string

// Face normalizes a raw timestamp string into a FaceTime. It only fixes the
// date/time separator; it deliberately does not touch the digits.
func Face(s string) FaceTime {
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	return FaceTime(s)
}

// FaceOf formats an instant's UTC digits as a FaceTime. Only used where the
// caller knows the instant's UTC digits are the face value it wants stored.
func FaceOf(t time.Time) FaceTime {
	return FaceTime(t.UTC().Format(FaceLayout))
}

// Valid reports whether the face value carries at least date, hour and
// minute digits. Records failing this are skipped, not fatal.
func (ft FaceTime) Valid() bool {
	return len(ft) >= 16 && ft[10] == 'T' && ft[13] == ':'
}

// BucketKey returns the quarter-hour bucket key of the face value, with the
// minute floored to 0/15/30/45. No offset arithmetic is applied.
func (ft FaceTime) BucketKey() string {
	s := string(ft)
	minute := int(s[14]-'0')*10 + int(s[15]-'0')
	return fmt.Sprintf("%s:%02d", s[:13], minute/15*15)
}

// MonthKey returns the "2006-01" calendar month of the face value.
func (ft FaceTime) MonthKey() string {
	return string(ft[:7])
}

// DayKey returns the "2006-01-02" calendar day of the face value.
func (ft FaceTime) DayKey() string {
	return string(ft[:10])
}

// MonthsBetween returns every "2006-01" month key from first through the
// month containing now (UTC), ascending.
func MonthsBetween(first string, now time.Time) []string {
	cur, err := time.Parse("2006-01", first)
	if err != nil {
		return nil
	}
	last := now.UTC().Format("2006-01")
	var months []string
	for {
		key := cur.Format("2006-01")
		months = append(months, key)
		if key >= last {
			break
		}
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// MonthStart returns the first instant of the month key's face-value range.
func MonthStart(key string) (time.Time, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t, nil
}

// DaysIn returns the number of calendar days covered by a period key: the
// month length for "2006-01" keys and 1 for "2006-01-02" keys.
func DaysIn(periodKey string) int {
	if strings.Count(periodKey, "-") == 2 {
		return 1
	}
	t, err := time.Parse("2006-01", periodKey)
	if err != nil {
		return 0
	}
	// day 0 of the following month is this month's final day
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
