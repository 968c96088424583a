// Package cron parses five-field cron expressions (minute, hour, day-of-month,
// month, day-of-week) and computes the instants at which they trigger.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidExpression is wrapped by every parse failure.
	ErrInvalidExpression = errors.New("invalid cron expression")
	// ErrNoNextTime is returned when no trigger exists within MaxSearchYears.
	ErrNoNextTime = errors.New("cron expression has no upcoming trigger")
)

// MaxSearchYears bounds the search performed by Next.
const MaxSearchYears = 5

// DayMatch controls how day-of-month and day-of-week combine when both are restricted.
type DayMatch int

const (
	// DayMatchUnion fires when either day field matches (standard cron).
	DayMatchUnion DayMatch = iota
	// DayMatchIntersect fires only when both day fields match.
	DayMatchIntersect
)

// String returns the configuration name of the mode.
func (d DayMatch) String() string {
	if d == DayMatchIntersect {
		return "intersect"
	}
	return "union"
}

// ParseDayMatch converts a configuration value into a DayMatch.
// An empty value selects DayMatchUnion.
func ParseDayMatch(value string) (DayMatch, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "union", "or":
		return DayMatchUnion, nil
	case "intersect", "and":
		return DayMatchIntersect, nil
	default:
		return DayMatchUnion, fmt.Errorf("unknown day match mode %q (expected union or intersect)", value)
	}
}

// Options tunes parsing behaviour.
type Options struct {
	DayMatch DayMatch
}

// ParseError describes why an expression was rejected.
type ParseError struct {
	Expression string
	Field      string
	Value      string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("cron %q: %s field %q: %s", e.Expression, e.Field, e.Value, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidExpression).
func (e *ParseError) Unwrap() error {
	return ErrInvalidExpression
}

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 7},
}

// daysInMonth holds the longest possible length of each month (leap February).
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

type bitset uint64

func (b bitset) has(i int) bool {
	return b&(1<<uint(i)) != 0
}

// Schedule is a parsed cron expression. It is immutable and safe for concurrent use.
type Schedule struct {
	expr     string
	minute   bitset
	hour     bitset
	dom      bitset
	month    bitset
	dow      bitset
	domStar  bool
	dowStar  bool
	dayMatch DayMatch
}

// Parse parses expr using DayMatchUnion.
func Parse(expr string) (*Schedule, error) {
	return ParseWithOptions(expr, Options{})
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) *Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseWithOptions parses a five-field cron expression.
func ParseWithOptions(expr string, opts Options) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fieldSpecs) {
		return nil, &ParseError{
			Expression: expr,
			Reason:     fmt.Sprintf("expected 5 fields (minute hour day-of-month month day-of-week), got %d", len(parts)),
		}
	}

	var sets [5]bitset
	for i, part := range parts {
		set, err := parseFieldSet(expr, fieldSpecs[i], part)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	// Sunday may be written as 0 or 7.
	if sets[4].has(7) {
		sets[4] = (sets[4] &^ (1 << 7)) | 1
	}

	s := &Schedule{
		expr:     strings.Join(parts, " "),
		minute:   sets[0],
		hour:     sets[1],
		dom:      sets[2],
		month:    sets[3],
		dow:      sets[4],
		domStar:  parts[2] == "*",
		dowStar:  parts[4] == "*",
		dayMatch: opts.DayMatch,
	}

	if !s.feasible() {
		return nil, &ParseError{
			Expression: expr,
			Reason:     "day-of-month never occurs in the selected months",
		}
	}
	return s, nil
}

func parseFieldSet(expr string, spec fieldSpec, value string) (bitset, error) {
	fail := func(reason string) error {
		return &ParseError{Expression: expr, Field: spec.name, Value: value, Reason: reason}
	}

	field, err := parseField(value)
	if err != nil {
		return 0, fail(fmt.Sprintf("malformed syntax: %v", err))
	}

	var set bitset
	for _, term := range field.Terms {
		lo, hi, step := spec.min, spec.max, 1

		if term.Step != nil {
			n, err := strconv.Atoi(*term.Step)
			if err != nil || n <= 0 {
				return 0, fail(fmt.Sprintf("step %q must be a positive integer", *term.Step))
			}
			step = n
		}

		if !term.Wildcard {
			start, err := strconv.Atoi(*term.Start)
			if err != nil {
				return 0, fail(fmt.Sprintf("invalid number %q", *term.Start))
			}
			lo, hi = start, start
			if term.End != nil {
				end, err := strconv.Atoi(*term.End)
				if err != nil {
					return 0, fail(fmt.Sprintf("invalid number %q", *term.End))
				}
				hi = end
			} else if term.Step != nil {
				return 0, fail("a step needs a range or *")
			}
			if lo < spec.min || hi > spec.max {
				return 0, fail(fmt.Sprintf("value out of range %d-%d", spec.min, spec.max))
			}
			if lo > hi {
				return 0, fail(fmt.Sprintf("range start %d is after end %d", lo, hi))
			}
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// feasible reports whether a restricted day-of-month can occur in any selected month.
// With union semantics a restricted day-of-week always provides matching days.
func (s *Schedule) feasible() bool {
	if s.domStar || (!s.dowStar && s.dayMatch == DayMatchUnion) {
		return true
	}
	for m := 1; m <= 12; m++ {
		if !s.month.has(m) {
			continue
		}
		for d := 1; d <= daysInMonth[m]; d++ {
			if s.dom.has(d) {
				return true
			}
		}
	}
	return false
}

// String returns the expression with normalized whitespace.
func (s *Schedule) String() string {
	return s.expr
}

// DayMatch returns the day combination mode the schedule was parsed with.
func (s *Schedule) DayMatch() DayMatch {
	return s.dayMatch
}

func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom.has(t.Day())
	dowOK := s.dow.has(int(t.Weekday()))
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowOK
	case s.dowStar:
		return domOK
	case s.dayMatch == DayMatchIntersect:
		return domOK && dowOK
	default:
		return domOK || dowOK
	}
}

// Next returns the earliest whole-minute instant strictly after the reference time
// that satisfies the schedule, in the reference time's location.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	loc := after.Location()
	// Drop seconds by subtraction rather than time.Date so an ambiguous
	// wall clock (DST fall-back) keeps its absolute position.
	t := after.Add(-time.Duration(after.Second())*time.Second - time.Duration(after.Nanosecond())).Add(time.Minute)
	limit := after.AddDate(MaxSearchYears, 0, 0)

	for !t.After(limit) {
		var next time.Time
		switch {
		case !s.month.has(int(t.Month())):
			next = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !s.dayMatches(t):
			next = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !s.hour.has(t.Hour()):
			next = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case !s.minute.has(t.Minute()):
			next = t.Add(time.Minute)
		default:
			return t, nil
		}
		if !next.After(t) {
			next = t.Add(time.Minute)
		}
		t = next
	}
	return time.Time{}, fmt.Errorf("%w: %q within %d years after %s", ErrNoNextTime, s.expr, MaxSearchYears, after.Format(time.RFC3339))
}

// NextN returns the next n trigger instants after the reference time.
func (s *Schedule) NextN(after time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	cursor := after
	for i := 0; i < n; i++ {
		next, err := s.Next(cursor)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		cursor = next
	}
	return out, nil
}
