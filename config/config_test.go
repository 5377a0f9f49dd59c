package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 60, cfg.EarlyCheckInMinutes)
	assert.Equal(t, 15, cfg.LateThresholdMinutes)
	assert.Equal(t, 180, cfg.HardCloseMinutes)
	assert.Equal(t, 100.0, cfg.Venue().RadiusMeters)
	assert.Equal(t, 5*time.Second, cfg.LocationRetryDelay)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("VENUE_NAME", "Globe")
	t.Setenv("VENUE_LATITUDE", "51.5081")
	t.Setenv("VENUE_LONGITUDE", "-0.0972")
	t.Setenv("VENUE_RADIUS_METERS", "75.5")
	t.Setenv("LATE_THRESHOLD_MINUTES", "10")
	t.Setenv("ELIGIBILITY_TICK", "1m")
	t.Setenv("VENUE_TIMEZONE", "Europe/London")
	t.Setenv("ROSTER_LOCALE", "sv")

	cfg := LoadConfig()

	venue := cfg.Venue()
	assert.Equal(t, "Globe", venue.Name)
	assert.Equal(t, 51.5081, venue.Latitude)
	assert.Equal(t, -0.0972, venue.Longitude)
	assert.Equal(t, 75.5, venue.RadiusMeters)
	assert.Equal(t, 10, cfg.Window().LateThresholdMinutes)
	assert.Equal(t, time.Minute, cfg.EligibilityTick)
	assert.Equal(t, "Europe/London", cfg.Location().String())
	assert.Equal(t, language.Swedish, cfg.Locale())
}

func TestLoadConfig_BadValuesFallBack(t *testing.T) {
	t.Setenv("VENUE_LATITUDE", "north")
	t.Setenv("REDIS_DB", "x")
	t.Setenv("CHECKIN_LOCK_TTL", "soon")
	t.Setenv("VENUE_TIMEZONE", "Nowhere/Special")
	t.Setenv("ROSTER_LOCALE", "!!")

	cfg := LoadConfig()

	assert.Equal(t, 40.7128, cfg.VenueLatitude)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 10*time.Second, cfg.CheckInLockTTL)
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, language.English, cfg.Locale())
}
