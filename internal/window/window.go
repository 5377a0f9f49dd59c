// Package window decides whether a session's check-in window is open.
package window

import (
	"math"
	"time"

	"checkin-system/models"
)

type State string

const (
	NoSession State = "no_session"
	TooEarly  State = "too_early"
	Open      State = "open"
	LateOpen  State = "late_open"
	Closed    State = "closed"
)

// DefaultHardCloseMinutes applies when the configured hard close is unset.
const DefaultHardCloseMinutes = 180

// Result is the window verdict at a given instant.
type Result struct {
	State State `json:"state"`
	// DiffMinutes is floor((start - now) / 1m); negative once the session has started.
	DiffMinutes int       `json:"diff_minutes"`
	OpensAt     time.Time `json:"opens_at,omitzero"`
	LateIfNow   bool      `json:"late_if_now"`
}

// Accepting reports whether a check-in may be taken in this state.
func (s State) Accepting() bool {
	return s == Open || s == LateOpen
}

func Evaluate(now time.Time, session *models.Session, cfg models.CheckInWindow) Result {
	if session == nil {
		return Result{State: NoSession}
	}

	start := session.StartTime
	diff := DiffMinutes(now, start)
	res := Result{
		DiffMinutes: diff,
		OpensAt:     start.Add(-time.Duration(cfg.EarlyOpenMinutes) * time.Minute),
	}

	switch {
	case diff > cfg.EarlyOpenMinutes:
		res.State = TooEarly
	case diff < -hardClose(cfg):
		res.State = Closed
	case IsLate(now, start, cfg):
		res.State = LateOpen
		res.LateIfNow = true
	default:
		res.State = Open
	}

	return res
}

// IsLate reports whether a check-in taken at `at` counts as late. Checking in
// exactly at the threshold is still on time.
func IsLate(at, start time.Time, cfg models.CheckInWindow) bool {
	return at.After(start.Add(time.Duration(cfg.LateThresholdMinutes) * time.Minute))
}

func DiffMinutes(now, start time.Time) int {
	return int(math.Floor(float64(start.Sub(now)) / float64(time.Minute)))
}

func hardClose(cfg models.CheckInWindow) int {
	if cfg.HardCloseMinutes <= 0 {
		return DefaultHardCloseMinutes
	}
	return cfg.HardCloseMinutes
}
