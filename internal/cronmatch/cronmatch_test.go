package cronmatch

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"* * * * * *", true},
		{"0 0 12 * * *", true},
		{"0-30 * * * * *", true},
		{"0,15,30,45 * * * * *", true},
		{"* * ? 34 * *", false}, // '?' unsupported, 34 out of range day-of-month
		{"* * * * *", false},   // only 5 fields
		{"60 * * * * *", false},
		{"* * * 0 * *", false}, // day-of-month must be 1-31
		{"* * * * 13 *", false},
		{"* * * * * 7", false}, // dow must be 0-6
	}

	for _, c := range cases {
		if got := Validate(c.expr); got != c.want {
			t.Errorf("Validate(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestMatchesEveryField(t *testing.T) {
	tm := time.Date(2026, time.March, 5, 12, 30, 15, 0, time.Local) // Thursday
	ok, err := Matches("* * * * * *", tm)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v err=%v", ok, err)
	}
}

func TestMatchesSpecificSecond(t *testing.T) {
	tm := time.Date(2026, time.March, 5, 12, 30, 15, 0, time.Local)
	ok, err := Matches("15 30 12 * * *", tm)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v err=%v", ok, err)
	}

	tm2 := tm.Add(time.Second)
	ok2, err := Matches("15 30 12 * * *", tm2)
	if err != nil || ok2 {
		t.Fatalf("expected no match at %v, got %v", tm2, ok2)
	}
}

func TestMatchesRangeAndList(t *testing.T) {
	tm := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.Local)
	ok, err := Matches("0 0 8-10 * * *", tm)
	if err != nil || !ok {
		t.Fatalf("expected match in range, got %v err=%v", ok, err)
	}

	ok2, err := Matches("0 0 1,2,9 * * *", tm)
	if err != nil || !ok2 {
		t.Fatalf("expected match in list, got %v err=%v", ok2, err)
	}
}

func TestMatchesDayOfWeek(t *testing.T) {
	sunday := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)
	ok, err := Matches("0 0 0 * * 0", sunday)
	if err != nil || !ok {
		t.Fatalf("expected sunday match, got %v err=%v", ok, err)
	}
}

// TestMatchesAgreesWithRobfigCronNext cross-checks our second-resolution
// matcher against github.com/robfig/cron/v3's own six-field parser: for
// a handful of schedules, the next second robfig computes from a given
// instant must be a second our own Matches reports as firing, and every
// second strictly between them must not.
func TestMatchesAgreesWithRobfigCronNext(t *testing.T) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	exprs := []string{
		"0 0,15,30,45 * * * *",
		"30 0 6 * * *",
		"0 0 * * * 1-5",
	}

	// Local, not UTC: Matches() normalizes every instant with t.Local()
	// before reading its fields, so the reference instant must already
	// be in that same location or the hour/day-of-week comparisons below
	// would silently shift with the machine's timezone offset.
	from := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local)

	for _, expr := range exprs {
		schedule, err := parser.Parse(expr)
		if err != nil {
			t.Fatalf("robfig failed to parse %q: %v", expr, err)
		}

		next := schedule.Next(from)

		ok, err := Matches(expr, next)
		if err != nil || !ok {
			t.Errorf("Matches(%q, %v) = %v, err=%v; want true at robfig's computed next fire", expr, next, ok, err)
		}

		for t2 := from.Add(time.Second); t2.Before(next); t2 = t2.Add(time.Second) {
			ok, err := Matches(expr, t2)
			if err != nil {
				t.Fatalf("Matches(%q, %v) unexpected error: %v", expr, t2, err)
			}
			if ok {
				t.Errorf("Matches(%q, %v) = true, want false (robfig's next fire is %v)", expr, t2, next)
			}
		}
	}
}

func TestValidateRejectsWhatMatchesWouldThrow(t *testing.T) {
	// Property (P5): validate must reject any expr that Matches would
	// otherwise fail to parse.
	exprs := []string{
		"", "* * *", "a b c d e f", "* * * * * */5", "-1 * * * * *",
	}
	for _, e := range exprs {
		if Validate(e) {
			t.Errorf("Validate(%q) = true, want false", e)
		}
		if _, err := Matches(e, time.Now()); err == nil {
			t.Errorf("Matches(%q, now) expected error", e)
		}
	}
}
