// Package eligibility combines the geofence and time-window verdicts into the
// single decision that enables or disables check-in.
package eligibility

import (
	"errors"
	"fmt"
	"time"

	"checkin-system/internal/geo"
	"checkin-system/internal/location"
	"checkin-system/internal/window"
	"checkin-system/models"
)

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoSession       Reason = "no_session"
	ReasonTooEarly        Reason = "too_early"
	ReasonClosed          Reason = "closed"
	ReasonLocationUnknown Reason = "location_unknown"
	ReasonNotAtVenue      Reason = "not_at_venue"
)

// State is recomputed from scratch on every input change and never persisted.
type State struct {
	LocationKnown   bool         `json:"location_known"`
	AtVenue         bool         `json:"at_venue"`
	DistanceMeters  float64      `json:"distance_meters"`
	Window          window.State `json:"window_state"`
	LateIfNow       bool         `json:"late_if_now"`
	CanCheckIn      bool         `json:"can_check_in"`
	Reason          Reason       `json:"reason"`
	Message         string       `json:"message"`
	LocationMessage string       `json:"location_message"`
}

type Inputs struct {
	Now      time.Time
	Session  *models.Session
	Position *models.Position
	// LocationErr is the last sensing failure, if any.
	LocationErr error
}

type Gate struct {
	venue  models.Venue
	window models.CheckInWindow
}

func NewGate(venue models.Venue, cfg models.CheckInWindow) *Gate {
	return &Gate{venue: venue, window: cfg}
}

func (g *Gate) Venue() models.Venue {
	return g.venue
}

func (g *Gate) Window() models.CheckInWindow {
	return g.window
}

// Recompute is a pure function of its inputs.
func (g *Gate) Recompute(in Inputs) State {
	venue := in.Session.ActiveVenue(g.venue)
	win := window.Evaluate(in.Now, in.Session, g.window)
	fix := geo.Evaluate(in.Position, venue)

	st := State{
		LocationKnown:   fix.Known,
		AtVenue:         fix.AtVenue,
		DistanceMeters:  fix.DistanceMeters,
		Window:          win.State,
		LateIfNow:       win.LateIfNow,
		LocationMessage: locationMessage(fix, venue, in.LocationErr),
	}
	st.CanCheckIn = win.State.Accepting() && fix.AtVenue

	switch {
	case st.CanCheckIn:
		st.Reason = ReasonNone
		if win.LateIfNow {
			st.Message = "Check-in is open; you will be marked late"
		} else {
			st.Message = "Click to check in to rehearsal"
		}
	case win.State == window.NoSession:
		st.Reason = ReasonNoSession
		st.Message = "No rehearsal scheduled for today"
	case win.State == window.TooEarly:
		st.Reason = ReasonTooEarly
		st.Message = fmt.Sprintf("Check-in will open %d minutes before rehearsal (at %s)",
			g.window.EarlyOpenMinutes, win.OpensAt.In(in.Now.Location()).Format("3:04 PM"))
	case win.State == window.Closed:
		st.Reason = ReasonClosed
		st.Message = "Check-in period has ended"
	case !fix.Known:
		st.Reason = ReasonLocationUnknown
		st.Message = unknownLocationMessage(in.LocationErr)
	default:
		st.Reason = ReasonNotAtVenue
		st.Message = "You must be at the rehearsal location to check in"
	}

	return st
}

func unknownLocationMessage(err error) string {
	switch {
	case err == nil:
		return "Waiting for your location"
	case errors.Is(err, location.ErrPermissionDenied):
		return "Location permission is required to check in"
	case errors.Is(err, location.ErrPositionUnavailable):
		return "Unable to determine your location"
	case errors.Is(err, location.ErrTimeout):
		return "Location request timed out, retrying"
	case errors.Is(err, location.ErrUnsupported):
		return "Your device does not support location services required for check-in"
	default:
		return "Error determining your location"
	}
}

func locationMessage(fix geo.Fix, venue models.Venue, err error) string {
	if !fix.Known && err != nil {
		switch {
		case errors.Is(err, location.ErrPermissionDenied):
			return "Location access denied. Please enable location services to check in"
		case errors.Is(err, location.ErrPositionUnavailable):
			return "Location information is unavailable. Please try again later"
		case errors.Is(err, location.ErrTimeout):
			return "Location request timed out. Please try again"
		}
	}
	return fix.Describe(venue)
}
