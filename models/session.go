package models

import (
	"time"
)

type Venue struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

type CheckInWindow struct {
	EarlyOpenMinutes     int `json:"early_open_minutes"`
	LateThresholdMinutes int `json:"late_threshold_minutes"`
	HardCloseMinutes     int `json:"hard_close_minutes"`
}

// Session is a scheduled rehearsal or performance call.
type Session struct {
	ID             string    `json:"id"`
	ProductionID   string    `json:"production_id"`
	ProductionName string    `json:"production_name"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Location       string    `json:"location,omitempty"`
	VenueOverride  *Venue    `json:"venue_override,omitempty"`
	Scenes         string    `json:"scenes,omitempty"`
}

// ActiveVenue returns the session's own venue when one is set, otherwise fallback.
func (s *Session) ActiveVenue(fallback Venue) Venue {
	if s == nil || s.VenueOverride == nil {
		return fallback
	}
	return *s.VenueOverride
}

func (s *Session) LocationName(fallback Venue) string {
	if s != nil && s.Location != "" {
		return s.Location
	}
	return s.ActiveVenue(fallback).Name
}

func (s *Session) SceneList() string {
	if s == nil || s.Scenes == "" {
		return "Full rehearsal"
	}
	return s.Scenes
}

// Position is a single device location reading.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	ObservedAt     time.Time `json:"observed_at"`
}
