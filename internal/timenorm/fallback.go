package timenorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The fixed German relative-time vocabulary. Classification and the local
// fallback resolver share these patterns so the two stages never disagree on
// what counts as relative.
var (
	// \b is an ASCII word boundary and never matches before 'ü', so the
	// alternatives starting with a non-ASCII letter need explicit
	// letter-class guards instead.
	relativeSimpleRe  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(heute|morgen|übermorgen)(?:[^\p{L}]|$)`)
	relativeWeekRe    = regexp.MustCompile(`(?i)\bnächste[rn]?\s+woche\b`)
	relativeWeekdayRe = regexp.MustCompile(`(?i)\b(?:nächste[rn]?|kommende[rn]?)\s+(montag|dienstag|mittwoch|donnerstag|freitag|samstag|sonntag)\b`)
	relativeInDaysRe  = regexp.MustCompile(`(?i)\bin\s+(\d{1,2})\s+tag(?:en)?\b`)

	clockRe      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	clockUhrRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.](\d{2}))?\s*uhr\b`)
	dateDottedRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	dateShortRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(?:\s|$)`)
	dateISORe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

var germanWeekdays = map[string]time.Weekday{
	"montag":     time.Monday,
	"dienstag":   time.Tuesday,
	"mittwoch":   time.Wednesday,
	"donnerstag": time.Thursday,
	"freitag":    time.Friday,
	"samstag":    time.Saturday,
	"sonntag":    time.Sunday,
}

// IsRelative reports whether text matches the fixed set of German
// relative-time expressions.
func IsRelative(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return relativeSimpleRe.MatchString(text) ||
		relativeWeekRe.MatchString(text) ||
		relativeWeekdayRe.MatchString(text) ||
		relativeInDaysRe.MatchString(text)
}

// resolveLocalDate resolves the date part of text against the reference day
// without any network call. It covers the relative vocabulary plus literal
// German and ISO dates. ok is false when text contains no recognizable date.
func resolveLocalDate(text string, reference time.Time) (time.Time, bool) {
	day := func(offset int) time.Time {
		return truncateToDay(reference).AddDate(0, 0, offset)
	}

	if m := relativeSimpleRe.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "heute":
			return day(0), true
		case "morgen":
			return day(1), true
		default: // übermorgen
			return day(2), true
		}
	}
	if m := relativeWeekdayRe.FindStringSubmatch(text); m != nil {
		target := germanWeekdays[strings.ToLower(m[1])]
		offset := (int(target) - int(reference.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return day(offset), true
	}
	if relativeWeekRe.MatchString(text) {
		return day(7), true
	}
	if m := relativeInDaysRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return day(n), true
		}
	}
	if m := dateDottedRe.FindStringSubmatch(text); m != nil {
		return buildDate(m[3], m[2], m[1], reference)
	}
	if m := dateISORe.FindStringSubmatch(text); m != nil {
		return buildDate(m[1], m[2], m[3], reference)
	}
	if m := dateShortRe.FindStringSubmatch(text); m != nil {
		// Day and month without a year: assume the reference year.
		return buildDate(strconv.Itoa(reference.Year()), m[2], m[1], reference)
	}
	return time.Time{}, false
}

func buildDate(year, month, day string, reference time.Time) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	mo, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, reference.Location()), true
}

// resolveLocalTime extracts a literal clock time (HH:MM or German "9 Uhr" /
// "9.30 Uhr") from text. ok is false when no clock time is present.
func resolveLocalTime(text string) (hour, minute int, ok bool) {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		return clockFrom(m[1], m[2])
	}
	if m := clockUhrRe.FindStringSubmatch(text); m != nil {
		return clockFrom(m[1], m[2])
	}
	return 0, 0, false
}

func clockFrom(hourStr, minuteStr string) (int, int, bool) {
	h, err := strconv.Atoi(hourStr)
	if err != nil || h > 23 {
		return 0, 0, false
	}
	m := 0
	if minuteStr != "" {
		m, err = strconv.Atoi(minuteStr)
		if err != nil || m > 59 {
			return 0, 0, false
		}
	}
	return h, m, true
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
