package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/slotclaim/internal/config"
)

// FromConfig turns a configured schedule into a cron.Schedule. Cron
// expressions without their own TZ prefix run in s.Location.
func FromConfig(s config.Schedule) (cron.Schedule, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	if s.IsCron() {
		expr := s.Cron
		if !strings.HasPrefix(expr, "TZ=") && !strings.HasPrefix(expr, "CRON_TZ=") {
			expr = "CRON_TZ=" + loc.String() + " " + expr
		}
		sched, err := config.CronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", s.Cron, err)
		}
		return sched, nil
	}
	rule, err := NewDateRule(loc, s.Second, s.Minute, s.Hour, s.Date, s.Month, s.Year)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// DateRule fires whenever every set component matches. Unset components
// match anything. Once Year has passed it never fires again.
type DateRule struct {
	inner cron.Schedule
	year  *int
	loc   *time.Location
}

func NewDateRule(loc *time.Location, second, minute, hour, date, month, year *int) (*DateRule, error) {
	field := func(v *int) string {
		if v == nil {
			return "*"
		}
		return strconv.Itoa(*v)
	}
	expr := fmt.Sprintf("CRON_TZ=%s %s %s %s %s %s *",
		loc.String(), field(second), field(minute), field(hour), field(date), field(month))
	inner, err := config.CronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("date rule: %w", err)
	}
	return &DateRule{inner: inner, year: year, loc: loc}, nil
}

func (r *DateRule) Next(t time.Time) time.Time {
	if r.year == nil {
		return r.inner.Next(t)
	}
	if t.In(r.loc).Year() < *r.year {
		t = time.Date(*r.year, time.January, 1, 0, 0, 0, 0, r.loc).Add(-time.Second)
	}
	next := r.inner.Next(t)
	if next.IsZero() || next.In(r.loc).Year() != *r.year {
		return time.Time{}
	}
	return next
}
