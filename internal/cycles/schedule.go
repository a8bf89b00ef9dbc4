package cycles

import (
	"errors"
	"fmt"
	"time"
)

// Schedule describes the shape of every weekly cycle.
type Schedule struct {
	Location   *time.Location
	VotingDays int // days from cycle start to the voting cutoff day
	CutoffHour int // hour of day voting closes
	LengthDays int // days from cycle start to the final day
}

// DefaultSchedule returns a cycle of three voting days closing at 20:00,
// ending on the sixth day after start.
func DefaultSchedule() Schedule {
	return Schedule{
		Location:   time.UTC,
		VotingDays: 3,
		CutoffHour: 20,
		LengthDays: 6,
	}
}

// Validate reports a schedule that cannot satisfy votingEndsAt < endDate.
func (s Schedule) Validate() error {
	if s.Location == nil {
		return errors.New("schedule: location is required")
	}
	if s.CutoffHour < 0 || s.CutoffHour > 23 {
		return fmt.Errorf("schedule: cutoff hour %d out of range 0-23", s.CutoffHour)
	}
	if s.VotingDays < 0 || s.LengthDays < s.VotingDays {
		return fmt.Errorf("schedule: voting days %d must be between 0 and length %d", s.VotingDays, s.LengthDays)
	}
	return nil
}

// Bounds computes the dates of a cycle starting on the day of now.
// Start is midnight, voting closes at the cutoff hour VotingDays later and
// the cycle ends at the last microsecond of the LengthDays-th day.
func (s Schedule) Bounds(now time.Time) (start, votingEndsAt, end time.Time) {
	local := now.In(s.Location)
	y, m, d := local.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, s.Location)
	votingEndsAt = time.Date(y, m, d+s.VotingDays, s.CutoffHour, 0, 0, 0, s.Location)
	end = time.Date(y, m, d+s.LengthDays, 23, 59, 59, int(time.Second-time.Microsecond), s.Location)
	return start, votingEndsAt, end
}

// Countdown is a non-negative duration broken into whole units.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// CountdownTo floors target-now into days, hours and minutes.
// A target in the past yields the zero Countdown.
func CountdownTo(target, now time.Time) Countdown {
	d := target.Sub(now)
	if d <= 0 {
		return Countdown{}
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	return Countdown{
		Days:    int(days),
		Hours:   int(hours),
		Minutes: int(d / time.Minute),
	}
}
