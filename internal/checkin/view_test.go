package checkin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkin-system/internal/eligibility"
	"checkin-system/internal/location"
	"checkin-system/internal/status"
	"checkin-system/internal/window"
	"checkin-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var theatre = models.Venue{Name: "Main Theatre", Latitude: 40.7128, Longitude: -74.0060, RadiusMeters: 100}

type fixedSessions struct {
	session *models.Session
	err     error
}

func (f *fixedSessions) FindTodaySession(ctx context.Context, now time.Time) (*models.Session, error) {
	return f.session, f.err
}

type recordingSink struct {
	mu          sync.Mutex
	eligibility []Snapshot
	phases      []Phase
}

func (s *recordingSink) PublishEligibility(ctx context.Context, userID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligibility = append(s.eligibility, snap)
	return nil
}

func (s *recordingSink) PublishCheckIn(ctx context.Context, userID string, phase Phase, rec *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, phase)
	return nil
}

func (s *recordingSink) published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.eligibility)
}

func (s *recordingSink) lastPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.phases) == 0 {
		return ""
	}
	return s.phases[len(s.phases)-1]
}

type viewFixture struct {
	view   *View
	sensor *location.PushSensor
	store  *memStore
	sink   *recordingSink
}

func newViewFixture(t *testing.T, sessions SessionSource, now time.Time) *viewFixture {
	t.Helper()
	sensor := location.NewPushSensor(location.PermissionGranted)
	f := &viewFixture{
		sensor: sensor,
		store:  newMemStore(),
		sink:   &recordingSink{},
	}
	f.view = NewView(ViewDeps{
		Participant: actor,
		Sessions:    sessions,
		Gate:        eligibility.NewGate(theatre, windowCfg),
		Tracker:     location.NewTracker(sensor, location.WithRetryDelay(20*time.Millisecond)),
		Store:       f.store,
		Sink:        f.sink,
		Clock:       fixedClock(now),
	})
	t.Cleanup(f.view.Close)
	return f
}

func (f *viewFixture) pushCenter() {
	f.sensor.Push(location.Reading{Position: &models.Position{Latitude: theatre.Latitude, Longitude: theatre.Longitude}})
}

func TestView_OpenThenCheckIn(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart.Add(-10*time.Minute))

	snap, err := f.view.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.Session.ID)
	assert.Equal(t, location.PermissionGranted, snap.Permission)
	assert.True(t, snap.Tracking)
	assert.False(t, snap.Eligibility.CanCheckIn)
	assert.Equal(t, eligibility.ReasonLocationUnknown, snap.Eligibility.Reason)

	f.pushCenter()
	assert.Eventually(t, func() bool { return f.view.State().CanCheckIn }, time.Second, 5*time.Millisecond)
	assert.Equal(t, window.Open, f.view.State().Window)

	rec, err := f.view.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.IsLate)
	assert.Equal(t, CheckedIn, f.view.Snapshot().Phase)
	assert.Equal(t, CheckedIn, f.sink.lastPhase())

	_, err = f.view.Submit(context.Background())
	assert.ErrorIs(t, err, status.ErrDuplicateCheckIn)
	assert.Equal(t, 1, f.store.count())
}

func TestView_SubmitNotAtVenue(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart)
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)

	f.sensor.Push(location.Reading{Position: &models.Position{Latitude: theatre.Latitude + 0.01, Longitude: theatre.Longitude}})
	assert.Eventually(t, func() bool { return f.view.State().LocationKnown }, time.Second, 5*time.Millisecond)

	_, err = f.view.Submit(context.Background())
	assert.ErrorIs(t, err, status.ErrNotEligible)
	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, eligibility.ReasonNotAtVenue, f.view.State().Reason)
}

func TestView_PublishesOnlyOnChange(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart.Add(-10*time.Minute))
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)

	before := f.sink.published()
	f.view.Recompute(context.Background())
	f.view.Recompute(context.Background())
	assert.Equal(t, before, f.sink.published())

	f.pushCenter()
	assert.Eventually(t, func() bool { return f.sink.published() > before }, time.Second, 5*time.Millisecond)
}

func TestView_NoSession(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{}, sessionStart)
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)
	f.pushCenter()

	assert.Eventually(t, func() bool { return f.view.State().LocationKnown }, time.Second, 5*time.Millisecond)
	assert.Equal(t, eligibility.ReasonNoSession, f.view.State().Reason)

	_, err = f.view.Submit(context.Background())
	assert.ErrorIs(t, err, status.ErrNoSession)
}

func TestView_SessionLoadFailureDegrades(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{err: errors.New("store down")}, sessionStart)

	snap, err := f.view.Open(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Session)
	assert.Equal(t, eligibility.ReasonNoSession, snap.Eligibility.Reason)
}

func TestView_PermissionRevoked(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart)
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)
	f.pushCenter()
	assert.Eventually(t, func() bool { return f.view.State().CanCheckIn }, time.Second, 5*time.Millisecond)

	f.sensor.SetPermission(location.PermissionDenied)

	assert.Eventually(t, func() bool { return !f.view.State().CanCheckIn }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Location permission is required to check in", f.view.State().Message)
}

func TestView_ReopenRestartsTrackingAfterUnavailable(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart.Add(-10*time.Minute))
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)

	f.sensor.Push(location.Reading{Err: location.ErrPositionUnavailable})
	assert.Eventually(t, func() bool { return !f.view.Tracker().Tracking() }, time.Second, 5*time.Millisecond)
	assert.False(t, f.sensor.Push(location.Reading{Position: &models.Position{Latitude: theatre.Latitude, Longitude: theatre.Longitude}}))

	snap, err := f.view.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Tracking)

	assert.Eventually(t, f.sensor.Watching, time.Second, 5*time.Millisecond)
	f.pushCenter()
	assert.Eventually(t, func() bool { return f.view.State().CanCheckIn }, time.Second, 5*time.Millisecond)
}

func TestView_SubmitAfterClose(t *testing.T) {
	f := newViewFixture(t, &fixedSessions{session: testSession()}, sessionStart)
	_, err := f.view.Open(context.Background())
	require.NoError(t, err)

	f.view.Close()
	_, err = f.view.Submit(context.Background())
	assert.ErrorIs(t, err, status.ErrViewNotOpen)
	assert.False(t, f.view.Tracker().Tracking())
}

func TestView_TickRepublishesAsTimePasses(t *testing.T) {
	var mu sync.Mutex
	now := sessionStart.Add(-90 * time.Minute)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	sensor := location.NewPushSensor(location.PermissionGranted)
	v := NewView(ViewDeps{
		Participant: actor,
		Sessions:    &fixedSessions{session: testSession()},
		Gate:        eligibility.NewGate(theatre, windowCfg),
		Tracker:     location.NewTracker(sensor),
		Store:       newMemStore(),
		Clock:       clock,
		Tick:        10 * time.Millisecond,
	})
	t.Cleanup(v.Close)

	_, err := v.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, window.TooEarly, v.State().Window)

	mu.Lock()
	now = sessionStart.Add(-30 * time.Minute)
	mu.Unlock()

	assert.Eventually(t, func() bool { return v.State().Window == window.Open }, time.Second, 5*time.Millisecond)
}
