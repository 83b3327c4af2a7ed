package occurrence

import (
	"errors"
	"time"
)

// DateFormat is the civil-date layout used for occurrence keys and
// exception rows. Dates are always interpreted in the event's timezone.
const DateFormat = "2006-01-02"

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyNone indicates a single, non-recurring occurrence.
	FrequencyNone Frequency = iota
	// FrequencyDaily generates occurrences for each day within the range.
	FrequencyDaily
	// FrequencyWeekly generates occurrences for the selected weekdays.
	FrequencyWeekly
)

// ErrInvalidRecurrenceRule indicates the recurrence pattern cannot be parsed.
var ErrInvalidRecurrenceRule = errors.New("occurrence: invalid recurrence rule")

// Rule describes a recurrence configuration for an event definition.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	Until     *time.Time
}

// ParseFrequency maps the stored frequency label to a Frequency value.
func ParseFrequency(value string) (Frequency, error) {
	switch value {
	case "", "none":
		return FrequencyNone, nil
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	default:
		return FrequencyNone, ErrInvalidRecurrenceRule
	}
}

// String returns the stored label for the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	default:
		return "none"
	}
}

// Validate reports whether the rule is expressible by the resolver.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyNone, FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if len(r.Weekdays) == 0 {
			return ErrInvalidRecurrenceRule
		}
		for _, day := range r.Weekdays {
			if day < time.Sunday || day > time.Saturday {
				return ErrInvalidRecurrenceRule
			}
		}
		return nil
	default:
		return ErrInvalidRecurrenceRule
	}
}

// Definition captures the slice of an event definition the resolver needs.
type Definition struct {
	EventID  string
	Start    time.Time
	End      time.Time
	Rule     Rule
	Location *time.Location
}

// Window bounds an occurrence query. Both ends are inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Occurrence is one concrete dated instance of an event definition.
type Occurrence struct {
	EventID string
	Date    string
	Start   time.Time
	End     time.Time
}

// ErrInvalidDuration indicates the base event duration is not positive.
var ErrInvalidDuration = errors.New("occurrence: event duration must be positive")

// Resolve expands the definition into dated occurrences within the window,
// excluding dates present in the exception set. Expansion is deterministic:
// identical inputs always produce identical output. Exceptions are keyed by
// absolute civil date and re-applied unconditionally, so a date deleted from
// a series stays deleted across edits to the parent's time or pattern.
func Resolve(def Definition, window Window, exceptions map[string]struct{}) ([]Occurrence, error) {
	if err := def.Rule.Validate(); err != nil {
		return nil, err
	}

	loc := def.Location
	if loc == nil {
		loc = time.UTC
	}

	baseStart := def.Start.In(loc)
	baseEnd := def.End.In(loc)
	if !baseEnd.After(baseStart) {
		return nil, ErrInvalidDuration
	}
	duration := baseEnd.Sub(baseStart)

	if def.Rule.Frequency == FrequencyNone {
		occ := buildOccurrence(def.EventID, baseStart, duration, loc)
		if !within(occ.Start, window) || excluded(occ.Date, exceptions) {
			return nil, nil
		}
		return []Occurrence{occ}, nil
	}

	// The series is bounded by its until date intersected with the window.
	upper := window.To.In(loc)
	if def.Rule.Until != nil {
		until := endOfDay(def.Rule.Until.In(loc), loc)
		if until.Before(upper) {
			upper = until
		}
	}

	lower := baseStart
	if from := window.From.In(loc); from.After(lower) {
		lower = from
	}
	if lower.After(upper) {
		return nil, nil
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(def.Rule.Weekdays))
	for _, day := range def.Rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	occurrences := make([]Occurrence, 0)
	for current := firstCandidate(baseStart, lower, loc); !current.After(upper); current = nextDay(current, loc) {
		if !include(def.Rule.Frequency, weekdaySet, current.Weekday()) {
			continue
		}
		occ := buildOccurrence(def.EventID, current, duration, loc)
		if !within(occ.Start, window) || excluded(occ.Date, exceptions) {
			continue
		}
		occurrences = append(occurrences, occ)
	}

	return occurrences, nil
}

// DateKey formats the civil date of t in loc as an occurrence key component.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateFormat)
}

// ContainsDate reports whether date is produced by the definition, ignoring
// exceptions. It is used to validate instance-deletion requests.
func ContainsDate(def Definition, date string) (bool, error) {
	loc := def.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateFormat, date, loc)
	if err != nil {
		return false, err
	}
	occs, err := Resolve(def, Window{From: day, To: endOfDay(day, loc)}, nil)
	if err != nil {
		return false, err
	}
	for _, occ := range occs {
		if occ.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func buildOccurrence(eventID string, start time.Time, duration time.Duration, loc *time.Location) Occurrence {
	return Occurrence{
		EventID: eventID,
		Date:    start.In(loc).Format(DateFormat),
		Start:   start,
		End:     start.Add(duration),
	}
}

func within(start time.Time, window Window) bool {
	return !start.Before(window.From) && !start.After(window.To)
}

func excluded(date string, exceptions map[string]struct{}) bool {
	_, ok := exceptions[date]
	return ok
}

// firstCandidate aligns the series template time onto the first date at or
// after the lower bound.
func firstCandidate(template, lower time.Time, loc *time.Location) time.Time {
	candidate := combineDateTime(lower, template, loc)
	for candidate.Before(lower) || candidate.Before(template) {
		candidate = nextDay(candidate, loc)
	}
	return candidate
}

func combineDateTime(dateSource, template time.Time, loc *time.Location) time.Time {
	y, m, d := dateSource.In(loc).Date()
	tpl := template.In(loc)
	return time.Date(y, m, d, tpl.Hour(), tpl.Minute(), tpl.Second(), tpl.Nanosecond(), loc)
}

// nextDay advances by one civil day, staying DST-safe by recombining the
// date rather than adding 24 hours.
func nextDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	tt := t.In(loc)
	return time.Date(y, m, d+1, tt.Hour(), tt.Minute(), tt.Second(), tt.Nanosecond(), loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

func include(freq Frequency, weekdaySet map[time.Weekday]struct{}, day time.Weekday) bool {
	switch freq {
	case FrequencyDaily:
		if len(weekdaySet) == 0 {
			return true
		}
		_, ok := weekdaySet[day]
		return ok
	case FrequencyWeekly:
		_, ok := weekdaySet[day]
		return ok
	default:
		return false
	}
}
