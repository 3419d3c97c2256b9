package signalgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Unit is the alignment unit of a Period.
type Unit int

const (
	Milliseconds Unit = iota
	Seconds
	Minutes
	Hours
)

func (u Unit) String() string {
	switch u {
	case Milliseconds:
		return "milliseconds"
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	default:
		return "unit(" + strconv.Itoa(int(u)) + ")"
	}
}

func (u Unit) base() time.Duration {
	switch u {
	case Milliseconds:
		return time.Millisecond
	case Seconds:
		return time.Second
	case Minutes:
		return time.Minute
	case Hours:
		return time.Hour
	default:
		return 0
	}
}

func (u Unit) suffix() string {
	switch u {
	case Milliseconds:
		return "ms"
	case Seconds:
		return "s"
	case Minutes:
		return "m"
	case Hours:
		return "h"
	default:
		return "?"
	}
}

// ParseUnit accepts the long and short spellings used in config files
// ("minutes", "minute", "min", "m", ...), case-insensitively.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ms", "millisecond", "milliseconds":
		return Milliseconds, nil
	case "s", "sec", "second", "seconds":
		return Seconds, nil
	case "m", "min", "minute", "minutes":
		return Minutes, nil
	case "h", "hour", "hours":
		return Hours, nil
	default:
		return 0, fmt.Errorf("%w: unknown unit %q (use milliseconds, seconds, minutes or hours)", ErrInvalidPeriod, raw)
	}
}

// Period is an alignment interval: Count whole Units.
type Period struct {
	Unit  Unit
	Count int
}

// NewPeriod validates unit and count. The resulting duration must fit in a
// time.Duration.
func NewPeriod(unit Unit, count int) (Period, error) {
	base := unit.base()
	if base == 0 {
		return Period{}, fmt.Errorf("%w: unknown unit %d", ErrInvalidPeriod, int(unit))
	}
	if count <= 0 {
		return Period{}, fmt.Errorf("%w: count must be > 0, got %d", ErrInvalidPeriod, count)
	}
	if int64(count) > math.MaxInt64/int64(base) {
		return Period{}, fmt.Errorf("%w: %d %s overflows", ErrInvalidPeriod, count, unit)
	}
	return Period{Unit: unit, Count: count}, nil
}

func (p Period) Duration() time.Duration { return time.Duration(p.Count) * p.Unit.base() }

func (p Period) String() string { return strconv.Itoa(p.Count) + p.Unit.suffix() }

// Policy selects how a tick maps the current time onto a step.
type Policy uint8

const (
	// PolicyAnticipate evaluates now+2*resolution and fires up to two poll
	// intervals before the boundary.
	PolicyAnticipate Policy = iota
	// PolicyStrict evaluates now and only fires once the boundary has passed.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyAnticipate:
		return "anticipate"
	case PolicyStrict:
		return "strict"
	default:
		return "policy(" + strconv.Itoa(int(p)) + ")"
	}
}

// ComputeStep returns floor(effective / period) where effective is the wall
// clock reading of now (in now's own location), advanced by 2*resolution under
// PolicyAnticipate. Ticks are nanoseconds.
func ComputeStep(now time.Time, period, resolution time.Duration, policy Policy) (int64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: period must be > 0, got %s", ErrInvalidPeriod, period)
	}
	if resolution < 0 {
		return 0, fmt.Errorf("%w: resolution must be >= 0, got %s", ErrInvalidResolution, resolution)
	}
	wall, err := wallNanos(now)
	if err != nil {
		return 0, err
	}
	if policy != PolicyStrict {
		if resolution > math.MaxInt64/2 {
			return 0, ErrStepOverflow
		}
		lead := 2 * int64(resolution)
		if wall > math.MaxInt64-lead {
			return 0, ErrStepOverflow
		}
		wall += lead
	}
	return floorDiv(wall, int64(period)), nil
}

// wallNanos is now.UnixNano() shifted by the zone offset, i.e. the reading of a
// wall clock in now's location counted from 1970-01-01T00:00 of that clock.
func wallNanos(now time.Time) (int64, error) {
	_, off := now.Zone()
	sec := now.Unix() + int64(off)
	if sec > math.MaxInt64/int64(time.Second)-1 || sec < math.MinInt64/int64(time.Second)+1 {
		return 0, ErrStepOverflow
	}
	return sec*int64(time.Second) + int64(now.Nanosecond()), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// AlignClock binds a period, poll resolution, policy and location.
type AlignClock struct {
	period     time.Duration
	resolution time.Duration
	policy     Policy
	loc        *time.Location
}

// NewAlignClock returns a clock for p. A nil loc means UTC.
func NewAlignClock(p Period, resolution time.Duration, policy Policy, loc *time.Location) (AlignClock, error) {
	if _, err := NewPeriod(p.Unit, p.Count); err != nil {
		return AlignClock{}, err
	}
	if resolution <= 0 {
		return AlignClock{}, fmt.Errorf("%w: must be > 0, got %s", ErrInvalidResolution, resolution)
	}
	if loc == nil {
		loc = time.UTC
	}
	return AlignClock{period: p.Duration(), resolution: resolution, policy: policy, loc: loc}, nil
}

func (c AlignClock) Period() time.Duration     { return c.period }
func (c AlignClock) Resolution() time.Duration { return c.resolution }
func (c AlignClock) Policy() Policy            { return c.policy }
func (c AlignClock) Location() *time.Location  { return c.loc }

// Step is ComputeStep evaluated on the wall clock of the clock's location.
func (c AlignClock) Step(now time.Time) (int64, error) {
	return ComputeStep(now.In(c.loc), c.period, c.resolution, c.policy)
}

// Boundary returns the instant at which step begins.
func (c AlignClock) Boundary(step int64) time.Time {
	p := int64(c.period)
	if step > math.MaxInt64/p || step < math.MinInt64/p {
		return time.Time{}
	}
	w := time.Unix(0, step*p).UTC()
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), c.loc)
}

// Next returns the first boundary strictly after now, ignoring the policy.
func (c AlignClock) Next(now time.Time) time.Time {
	step, err := ComputeStep(now.In(c.loc), c.period, 0, PolicyStrict)
	if err != nil {
		return time.Time{}
	}
	return c.Boundary(step + 1)
}
