// Package timenorm resolves raw, possibly relative German date and time
// expressions into absolute timestamps with a business-hours verdict. The
// external time-parsing service is the primary resolver; a local regex
// resolver covers the same relative vocabulary when the service is down.
package timenorm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/hours"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
)

const defaultSlotMinutes = 15

// NormalizedDateTime is the per-item result of time resolution.
type NormalizedDateTime struct {
	// Raw preserves the original slot text.
	Raw string `json:"raw"`
	// Resolved is the absolute timestamp, nil when unresolved.
	Resolved *time.Time `json:"resolved"`
	// SlotEnd is Resolved plus the slot duration.
	SlotEnd *time.Time `json:"slot_end"`
	// DateOnly and TimeOnly are projections of Resolved.
	DateOnly string `json:"date_only"`
	TimeOnly string `json:"time_only"`
	// Display is a human-readable German rendering.
	Display string `json:"display"`
	// WithinBusinessHours reports the oracle verdict for Resolved.
	WithinBusinessHours bool `json:"within_business_hours"`
	// IsRelative reports whether the raw input was a relative expression.
	IsRelative bool `json:"is_relative"`
}

// Input is one date/time slot pair to resolve.
type Input struct {
	Date        *string
	Time        *string
	SlotMinutes int
	// Reference is the instant relative expressions resolve against.
	// Zero means now.
	Reference time.Time
}

// Config tunes the normalizer.
type Config struct {
	Locale    string // default de_DE
	Timezone  string // default Europe/Berlin
	CacheSize int
	CacheTTL  time.Duration
}

// Normalizer resolves date/time slots. Safe for concurrent use: per-call
// state is local and the cache is internally synchronized.
type Normalizer struct {
	duckling *DucklingClient
	oracle   *hours.Oracle
	cache    *spanCache
	locale   string
	timezone string
	location *time.Location
	logger   *logging.Logger
}

// New builds a normalizer. duckling may be nil, in which case only the local
// resolver runs.
func New(duckling *DucklingClient, oracle *hours.Oracle, config Config, logger *logging.Logger) *Normalizer {
	if config.Locale == "" {
		config.Locale = "de_DE"
	}
	if config.Timezone == "" {
		config.Timezone = "Europe/Berlin"
	}
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		location = time.UTC
	}
	return &Normalizer{
		duckling: duckling,
		oracle:   oracle,
		cache:    newSpanCache(config.CacheSize, config.CacheTTL),
		locale:   config.Locale,
		timezone: config.Timezone,
		location: location,
		logger:   logging.OrNop(logger),
	}
}

// Normalize resolves one date/time slot pair. It never fails: service
// errors degrade to the local resolver, and unresolvable input yields an
// unresolved result with Resolved == nil.
func (n *Normalizer) Normalize(ctx context.Context, input Input) NormalizedDateTime {
	reference := input.Reference
	if reference.IsZero() {
		reference = time.Now()
	}
	reference = reference.In(n.location)

	slotMinutes := input.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = defaultSlotMinutes
	}

	rawDate := derefTrimmed(input.Date)
	rawTime := derefTrimmed(input.Time)

	out := NormalizedDateTime{
		Raw:        joinRaw(rawDate, rawTime),
		IsRelative: IsRelative(rawDate) || IsRelative(rawTime),
	}
	if rawDate == "" && rawTime == "" {
		return out
	}

	datePart, dateOK := n.resolveDate(ctx, rawDate, reference)
	hour, minute, timeOK := n.resolveTime(ctx, rawTime, reference)

	if !dateOK && !timeOK {
		return out
	}
	// Missing halves fall back to "today": the reference date for a lone
	// time, the reference clock for a lone date.
	if !dateOK {
		datePart = truncateToDay(reference)
	}
	if !timeOK {
		hour, minute = reference.Hour(), reference.Minute()
	}

	resolved := time.Date(datePart.Year(), datePart.Month(), datePart.Day(), hour, minute, 0, 0, n.location)
	slotEnd := resolved.Add(time.Duration(slotMinutes) * time.Minute)

	out.Resolved = &resolved
	out.SlotEnd = &slotEnd
	out.DateOnly = resolved.Format("2006-01-02")
	out.TimeOnly = resolved.Format("15:04")
	out.Display = displayGerman(resolved)
	out.WithinBusinessHours = n.oracle.IsOpen(resolved)
	return out
}

// resolveDate resolves the date half: service first, local regex fallback on
// any failure or empty result.
func (n *Normalizer) resolveDate(ctx context.Context, raw string, reference time.Time) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if span, ok := pickSpan(n.resolveSpans(ctx, raw, reference)); ok {
		return truncateToDay(span.Value.In(n.location)), true
	}
	if date, ok := resolveLocalDate(raw, reference); ok {
		return date, true
	}
	return time.Time{}, false
}

// resolveTime resolves the time half to a clock time.
func (n *Normalizer) resolveTime(ctx context.Context, raw string, reference time.Time) (int, int, bool) {
	if raw == "" {
		return 0, 0, false
	}
	spans := n.resolveSpans(ctx, raw, reference)
	for _, span := range spans {
		if span.HasTimeOfDay() {
			local := span.Value.In(n.location)
			return local.Hour(), local.Minute(), true
		}
	}
	if hour, minute, ok := resolveLocalTime(raw); ok {
		return hour, minute, ok
	}
	return 0, 0, false
}

// resolveSpans consults the cache, then the service. Service failures are
// absorbed: the caller continues with the local resolver.
func (n *Normalizer) resolveSpans(ctx context.Context, text string, reference time.Time) []Span {
	if n.duckling == nil {
		return nil
	}
	key := cacheKey(text, n.locale, n.timezone, reference)
	if spans, ok := n.cache.get(key); ok {
		return spans
	}
	spans, err := n.duckling.Parse(ctx, text, n.locale, n.timezone, reference)
	if err != nil {
		n.logger.Warn("time-parsing service failed, using local resolver", "text", text, "error", err)
		return nil
	}
	n.cache.put(key, spans)
	return spans
}

var germanDayNames = map[time.Weekday]string{
	time.Monday:    "Montag",
	time.Tuesday:   "Dienstag",
	time.Wednesday: "Mittwoch",
	time.Thursday:  "Donnerstag",
	time.Friday:    "Freitag",
	time.Saturday:  "Samstag",
	time.Sunday:    "Sonntag",
}

func displayGerman(t time.Time) string {
	return fmt.Sprintf("%s, %s um %s Uhr", germanDayNames[t.Weekday()], t.Format("02.01.2006"), t.Format("15:04"))
}

func derefTrimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func joinRaw(date, timeText string) string {
	switch {
	case date == "":
		return timeText
	case timeText == "":
		return date
	default:
		return date + " " + timeText
	}
}
