package cmd

import (
	"bytes"
	"testing"
	"time"

	"checkin-system/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		VenueName:            "Main Theatre",
		VenueLatitude:        40.7128,
		VenueLongitude:       -74.0060,
		VenueRadius:          100,
		VenueTimezone:        "UTC",
		EarlyCheckInMinutes:  60,
		LateThresholdMinutes: 15,
		HardCloseMinutes:     180,
	}
}

func runSimulate(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newSimulateCmd(testConfig())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestSimulate_AtVenue(t *testing.T) {
	out := runSimulate(t, "--at", "18:50", "--start", "19:00")

	assert.Contains(t, out, "CAN CHECK IN")
	assert.Contains(t, out, "Click to check in to rehearsal")
	assert.Contains(t, out, "Location verified: you are at Main Theatre")
}

func TestSimulate_LateAndFar(t *testing.T) {
	out := runSimulate(t, "--at", "19:20", "--start", "19:00", "--lat", "40.7228")

	assert.Contains(t, out, "CANNOT CHECK IN")
	assert.Contains(t, out, "You must be at the rehearsal location to check in")
	assert.Contains(t, out, "meters away from Main Theatre")
}

func TestSimulate_TooEarly(t *testing.T) {
	out := runSimulate(t, "--at", "2026-10-17T17:00:00Z", "--start", "2026-10-17T19:00:00Z")

	assert.Contains(t, out, "CANNOT CHECK IN")
	assert.Contains(t, out, "Check-in will open 60 minutes before rehearsal (at 6:00 PM)")
}

func TestSimulate_BadTime(t *testing.T) {
	cmd := newSimulateCmd(testConfig())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--at", "tea time"})
	assert.Error(t, cmd.Execute())
}

func TestParseClock(t *testing.T) {
	ref := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	got, err := parseClock("19:05", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 17, 19, 5, 0, 0, time.UTC), got)

	got, err = parseClock("2026-10-18T07:30:00Z", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 18, got.Day())
}
