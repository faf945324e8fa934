// Package cadence implements recurring schedules anchored on block height,
// elapsed time, or a cron expression.
//
// Each variant stores the anchor of its last run. Cranking a cadence moves
// the anchor forward by whole periods; when several periods were missed the
// anchor collapses onto the most recent period boundary instead of replaying
// every missed one.
package cadence

import (
	"time"

	"github.com/robfig/cron/v3"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/scheduler"
)

var (
	ErrEmptyCadence     = errors.New("cadence: no variant set")
	ErrZeroInterval     = errors.New("cadence: interval must be positive")
	ErrInvalidCron      = errors.New("cadence: invalid cron expression")
	ErrAmbiguousVariant = errors.New("cadence: more than one variant set")
)

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Kind blocks, time, cron
type Kind uint8

const (
	_kind_beg Kind = iota
	KindBlocks
	KindTime
	KindCron
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

// Blocks recurs every Interval blocks.
type Blocks struct {
	Interval uint64  `json:"interval"`
	Previous *uint64 `json:"previous,omitempty"`
}

// Time recurs every Duration.
type Time struct {
	Duration time.Duration `json:"duration"`
	Previous *time.Time    `json:"previous,omitempty"`
}

// Cron recurs on the occurrences of Expr (six fields, seconds first).
// Previous is the time of the last run; the next run is the first occurrence
// after it.
type Cron struct {
	Expr     string     `json:"expr"`
	Previous *time.Time `json:"previous,omitempty"`
}

// Cadence is a recurring schedule. Exactly one variant is set.
type Cadence struct {
	Blocks *Blocks `json:"blocks,omitempty"`
	Time   *Time   `json:"time,omitempty"`
	Cron   *Cron   `json:"cron,omitempty"`
}

func EveryBlocks(interval uint64) Cadence {
	return Cadence{Blocks: &Blocks{Interval: interval}}
}

func Every(d time.Duration) Cadence {
	return Cadence{Time: &Time{Duration: d}}
}

func OnCron(expr string) Cadence {
	return Cadence{Cron: &Cron{Expr: expr}}
}

func (c Cadence) Kind() Kind {
	switch {
	case c.Blocks != nil:
		return KindBlocks
	case c.Time != nil:
		return KindTime
	case c.Cron != nil:
		return KindCron
	default:
		return _kind_beg
	}
}

// Validate checks the variant is well formed.
func (c Cadence) Validate() error {
	set := 0
	for _, ok := range []bool{c.Blocks != nil, c.Time != nil, c.Cron != nil} {
		if ok {
			set++
		}
	}
	if set == 0 {
		return ErrEmptyCadence
	}
	if set > 1 {
		return ErrAmbiguousVariant
	}

	switch c.Kind() {
	case KindBlocks:
		if c.Blocks.Interval == 0 {
			return ErrZeroInterval
		}
	case KindTime:
		if c.Time.Duration < time.Second {
			return errors.Wrapf(ErrZeroInterval, "duration %s", c.Time.Duration)
		}
	case KindCron:
		if _, err := parser.Parse(c.Cron.Expr); err != nil {
			return errors.Wrapf(ErrInvalidCron, "%q: %v", c.Cron.Expr, err)
		}
	}
	return nil
}

// IsDue reports whether the next period has started. A cadence that never
// ran is due immediately.
func (c Cadence) IsDue(env ledger.Env) (bool, error) {
	switch c.Kind() {
	case KindBlocks:
		if c.Blocks.Previous == nil {
			return true, nil
		}
		return env.Height >= *c.Blocks.Previous+c.Blocks.Interval, nil
	case KindTime:
		if c.Time.Previous == nil {
			return true, nil
		}
		return env.Unix() >= c.Time.Previous.Unix()+seconds(c.Time.Duration), nil
	case KindCron:
		if c.Cron.Previous == nil {
			return true, nil
		}
		cond, err := c.Trigger(env)
		if err != nil {
			return false, err
		}
		return cond.Satisfied(env), nil
	default:
		return false, ErrEmptyCadence
	}
}

// Trigger converts the next due point into a scheduler condition.
func (c Cadence) Trigger(env ledger.Env) (scheduler.Condition, error) {
	switch c.Kind() {
	case KindBlocks:
		if c.Blocks.Previous == nil {
			return scheduler.AtHeight(env.Height), nil
		}
		return scheduler.AtHeight(*c.Blocks.Previous + c.Blocks.Interval), nil
	case KindTime:
		if c.Time.Previous == nil {
			return scheduler.AtTime(env.Time), nil
		}
		return scheduler.AtTime(c.Time.Previous.Add(truncate(c.Time.Duration))), nil
	case KindCron:
		schedule, err := parser.Parse(c.Cron.Expr)
		if err != nil {
			return scheduler.Condition{}, errors.Wrapf(ErrInvalidCron, "%q: %v", c.Cron.Expr, err)
		}
		from := env.Time
		if c.Cron.Previous != nil {
			from = *c.Cron.Previous
		}
		next := schedule.Next(from.UTC())
		if next.IsZero() {
			return scheduler.Never(), nil
		}
		return scheduler.AtTime(next), nil
	default:
		return scheduler.Condition{}, ErrEmptyCadence
	}
}

// Crank returns the cadence anchored on the period that is due at env.
func (c Cadence) Crank(env ledger.Env) (Cadence, error) {
	switch c.Kind() {
	case KindBlocks:
		anchor := env.Height
		if c.Blocks.Previous != nil {
			anchor = crank(*c.Blocks.Previous, c.Blocks.Interval, env.Height)
		}
		return Cadence{Blocks: &Blocks{Interval: c.Blocks.Interval, Previous: &anchor}}, nil
	case KindTime:
		anchor := time.Unix(env.Unix(), 0).UTC()
		if c.Time.Previous != nil && c.Time.Duration >= time.Second {
			at := crank(uint64(c.Time.Previous.Unix()), uint64(seconds(c.Time.Duration)), uint64(env.Unix()))
			anchor = time.Unix(int64(at), 0).UTC()
		}
		return Cadence{Time: &Time{Duration: c.Time.Duration, Previous: &anchor}}, nil
	case KindCron:
		if _, err := parser.Parse(c.Cron.Expr); err != nil {
			return Cadence{}, errors.Wrapf(ErrInvalidCron, "%q: %v", c.Cron.Expr, err)
		}
		anchor := env.Time.UTC()
		if c.Cron.Previous != nil && c.Cron.Previous.After(anchor) {
			anchor = c.Cron.Previous.UTC()
		}
		return Cadence{Cron: &Cron{Expr: c.Cron.Expr, Previous: &anchor}}, nil
	default:
		return Cadence{}, ErrEmptyCadence
	}
}

// crank advances previous by one interval, or, when more than one interval
// was missed, onto the latest interval boundary at or before now.
func crank(previous, interval, now uint64) uint64 {
	next := previous + interval
	if now > interval && next < now-interval && now > previous {
		return now - (now-previous)%interval
	}
	return next
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func truncate(d time.Duration) time.Duration {
	return d.Truncate(time.Second)
}
