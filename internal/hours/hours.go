// Package hours owns the practice opening calendar: weekly opening windows
// and holidays. One Oracle instance is shared process-wide; configuration is
// replaced wholesale through explicit calls, never mutated in place.
package hours

import (
	"fmt"
	"sync"
	"time"
)

// Interval is one opening window within a day, "HH:MM" inclusive start,
// exclusive end.
type Interval struct {
	Start string `json:"start" yaml:"start" mapstructure:"start"`
	End   string `json:"end" yaml:"end" mapstructure:"end"`
}

// contains reports whether the clock time h:m falls inside the interval.
func (iv Interval) contains(h, m int) (bool, error) {
	startH, startM, err := parseClock(iv.Start)
	if err != nil {
		return false, err
	}
	endH, endM, err := parseClock(iv.End)
	if err != nil {
		return false, err
	}
	minutes := h*60 + m
	return minutes >= startH*60+startM && minutes < endH*60+endM, nil
}

func parseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	return h, m, nil
}

// Config is the full opening calendar.
type Config struct {
	// Weekly maps weekday names (monday..sunday, lowercase) to opening
	// windows. Absent or empty weekdays are closed.
	Weekly map[string][]Interval `json:"weekly" yaml:"weekly" mapstructure:"weekly"`
	// Holidays are closed dates in ISO format, YYYY-MM-DD.
	Holidays []string `json:"holidays" yaml:"holidays" mapstructure:"holidays"`
	// Location is the IANA timezone the calendar is expressed in.
	Location string `json:"location" yaml:"location" mapstructure:"location"`
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}

// DefaultConfig models the practice's split-shift week: Mon/Tue/Thu/Fri
// morning and afternoon, Wednesday morning only, closed weekends. Holidays
// cover the nationwide German public holidays of the current and next year.
func DefaultConfig() Config {
	splitShift := []Interval{{Start: "08:00", End: "12:00"}, {Start: "15:00", End: "18:00"}}
	morningOnly := []Interval{{Start: "08:00", End: "12:00"}}
	year := time.Now().Year()
	return Config{
		Weekly: map[string][]Interval{
			"monday":    splitShift,
			"tuesday":   splitShift,
			"wednesday": morningOnly,
			"thursday":  splitShift,
			"friday":    splitShift,
		},
		Holidays: append(germanPublicHolidays(year), germanPublicHolidays(year+1)...),
		Location: "Europe/Berlin",
	}
}

// germanPublicHolidays returns the fixed-date nationwide holidays plus the
// Easter-derived ones for a year.
func germanPublicHolidays(year int) []string {
	easter := easterSunday(year)
	dates := []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		easter.AddDate(0, 0, -2), // Karfreitag
		easter.AddDate(0, 0, 1),  // Ostermontag
		time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC),
		easter.AddDate(0, 0, 39), // Christi Himmelfahrt
		easter.AddDate(0, 0, 50), // Pfingstmontag
		time.Date(year, time.October, 3, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 26, 0, 0, 0, 0, time.UTC),
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// easterSunday computes Easter via the Gauss/Anonymous Gregorian algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Validate checks every interval and the timezone.
func (c Config) Validate() error {
	for day, intervals := range c.Weekly {
		if !validWeekday(day) {
			return fmt.Errorf("unknown weekday %q", day)
		}
		for _, iv := range intervals {
			if _, err := iv.contains(0, 0); err != nil {
				return fmt.Errorf("weekday %s: %w", day, err)
			}
		}
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("invalid holiday date %q", h)
		}
	}
	if c.Location != "" {
		if _, err := time.LoadLocation(c.Location); err != nil {
			return fmt.Errorf("invalid location %q: %w", c.Location, err)
		}
	}
	return nil
}

func validWeekday(name string) bool {
	for _, known := range weekdayNames {
		if name == known {
			return true
		}
	}
	return false
}

// Oracle answers "is this timestamp open for business". Reads vastly
// outnumber configuration changes, so it is guarded by an RWMutex with
// last-writer-wins replacement semantics.
type Oracle struct {
	mu       sync.RWMutex
	config   Config
	location *time.Location
	holidays map[string]bool
}

// NewOracle returns an oracle seeded with DefaultConfig.
func NewOracle() *Oracle {
	o := &Oracle{}
	// DefaultConfig always validates.
	_ = o.Replace(DefaultConfig())
	return o
}

// Replace swaps in a new configuration after validating it.
func (o *Oracle) Replace(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	location := time.UTC
	if config.Location != "" {
		location, _ = time.LoadLocation(config.Location)
	}
	holidays := make(map[string]bool, len(config.Holidays))
	for _, h := range config.Holidays {
		holidays[h] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.config = config
	o.location = location
	o.holidays = holidays
	return nil
}

// Snapshot returns a copy of the current configuration.
func (o *Oracle) Snapshot() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := o.config
	out.Weekly = make(map[string][]Interval, len(o.config.Weekly))
	for day, intervals := range o.config.Weekly {
		out.Weekly[day] = append([]Interval(nil), intervals...)
	}
	out.Holidays = append([]string(nil), o.config.Holidays...)
	return out
}

// IsHoliday reports whether the calendar date of t (in practice local time)
// is a configured holiday.
func (o *Oracle) IsHoliday(t time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.holidays[t.In(o.location).Format("2006-01-02")]
}

// IsOpen reports whether t falls inside an opening window: the date is not a
// holiday and the local clock time lies in at least one interval configured
// for that weekday.
func (o *Oracle) IsOpen(t time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	local := t.In(o.location)
	if o.holidays[local.Format("2006-01-02")] {
		return false
	}
	intervals := o.config.Weekly[weekdayNames[local.Weekday()]]
	for _, iv := range intervals {
		if ok, err := iv.contains(local.Hour(), local.Minute()); err == nil && ok {
			return true
		}
	}
	return false
}
