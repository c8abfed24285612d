// Package cronmatch parses and evaluates Kiwibes' six-field cron
// expressions: seconds, minutes, hours, day-of-month, month,
// day-of-week. The field order and the `*`/list/range grammar mirror
// github.com/robfig/cron/v3's own parser conventions, trimmed to the
// subset this spec requires (no step values, no month/weekday names)
// and widened to second-level granularity, since schedules here are
// re-validated and matched against a live, mutable catalog every
// second rather than compiled once into a long-lived cron.Schedule.
package cronmatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type fieldRange struct {
	min, max int
}

var fieldRanges = [6]fieldRange{
	{0, 59}, // seconds
	{0, 59}, // minutes
	{0, 23}, // hours
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, 0 = Sunday
}

const fieldCount = 6

// Expr is a parsed, ready-to-match six-field cron expression.
type Expr struct {
	fields [fieldCount]map[int]bool
	source string
}

// Validate reports whether expr is a syntactically and semantically
// well-formed six-field cron expression.
func Validate(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

// Parse parses expr into an Expr, or returns an error describing the
// first malformed or out-of-range field.
func Parse(expr string) (*Expr, error) {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("cronmatch: expected %d fields, got %d", fieldCount, len(fields))
	}

	e := &Expr{source: expr}
	for i, field := range fields {
		set, err := parseField(field, fieldRanges[i])
		if err != nil {
			return nil, fmt.Errorf("cronmatch: field %d (%q): %w", i, field, err)
		}
		e.fields[i] = set
	}
	return e, nil
}

// Matches reports whether expr fires at t: every field's set must
// contain the corresponding broken-down component of t's local time.
func Matches(expr string, t time.Time) (bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Matches(t), nil
}

// Matches reports whether the parsed expression fires at t.
func (e *Expr) Matches(t time.Time) bool {
	t = t.Local()
	components := [fieldCount]int{
		t.Second(),
		t.Minute(),
		t.Hour(),
		t.Day(),
		int(t.Month()),
		int(t.Weekday()), // time.Sunday == 0, matching the dow convention
	}

	for i, set := range e.fields {
		if !set[components[i]] {
			return false
		}
	}
	return true
}

// String returns the original expression text.
func (e *Expr) String() string {
	return e.source
}

// parseField parses one comma-separated list of `*`, literal, or
// `a-b` range tokens into the set of integers it denotes.
func parseField(field string, r fieldRange) (map[int]bool, error) {
	set := make(map[int]bool)

	for _, token := range strings.Split(field, ",") {
		if token == "" {
			return nil, fmt.Errorf("empty token")
		}

		if token == "*" {
			for v := r.min; v <= r.max; v++ {
				set[v] = true
			}
			continue
		}

		if lo, hi, ok := strings.Cut(token, "-"); ok {
			loN, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", lo, err)
			}
			hiN, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", hi, err)
			}
			if loN > hiN {
				return nil, fmt.Errorf("range %q is inverted", token)
			}
			if err := checkBounds(loN, r); err != nil {
				return nil, err
			}
			if err := checkBounds(hiN, r); err != nil {
				return nil, err
			}
			for v := loN; v <= hiN; v++ {
				set[v] = true
			}
			continue
		}

		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid literal %q: %w", token, err)
		}
		if err := checkBounds(n, r); err != nil {
			return nil, err
		}
		set[n] = true
	}

	return set, nil
}

func checkBounds(n int, r fieldRange) error {
	if n < r.min || n > r.max {
		return fmt.Errorf("value %d out of range [%d,%d]", n, r.min, r.max)
	}
	return nil
}
