package geo

import (
	"fmt"

	"checkin-system/models"

	"github.com/shopspring/decimal"
)

// Fix is the geofence verdict for one position. Known is false until the
// first reading arrives, so callers can tell "waiting" apart from "outside".
type Fix struct {
	Known          bool    `json:"known"`
	AtVenue        bool    `json:"at_venue"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Evaluate tests pos against the venue circle. The boundary is inclusive.
func Evaluate(pos *models.Position, venue models.Venue) Fix {
	if pos == nil {
		return Fix{}
	}

	d := Distance(pos.Latitude, pos.Longitude, venue.Latitude, venue.Longitude)
	return Fix{
		Known:          true,
		AtVenue:        d <= venue.RadiusMeters,
		DistanceMeters: d,
	}
}

// Describe renders the verdict for display.
func (f Fix) Describe(venue models.Venue) string {
	switch {
	case !f.Known:
		return "Waiting for your location..."
	case f.AtVenue:
		return fmt.Sprintf("Location verified: you are at %s", venue.Name)
	default:
		return fmt.Sprintf("You are %s meters away from %s", RoundMeters(f.DistanceMeters), venue.Name)
	}
}

// RoundMeters formats a distance as whole meters.
func RoundMeters(d float64) string {
	return decimal.NewFromFloat(d).Round(0).String()
}
