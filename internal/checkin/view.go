package checkin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"checkin-system/internal/eligibility"
	"checkin-system/internal/location"
	"checkin-system/internal/status"
	"checkin-system/models"
)

// SessionSource finds the session a participant checks in to.
type SessionSource interface {
	FindTodaySession(ctx context.Context, now time.Time) (*models.Session, error)
}

// Sink receives everything the participant's screen renders.
type Sink interface {
	PublishEligibility(ctx context.Context, userID string, snap Snapshot) error
	PublishCheckIn(ctx context.Context, userID string, phase Phase, rec *models.AttendanceRecord) error
}

// Snapshot is the full presentation state of a view.
type Snapshot struct {
	Session     *models.Session          `json:"session"`
	Eligibility eligibility.State        `json:"eligibility"`
	Phase       Phase                    `json:"phase"`
	Record      *models.AttendanceRecord `json:"record,omitempty"`
	Permission  location.PermissionState `json:"permission"`
	Tracking    bool                     `json:"tracking"`
}

// ViewDeps wires a View. A zero Tick disables the periodic recompute.
type ViewDeps struct {
	Participant models.Participant
	Sessions    SessionSource
	Gate        *eligibility.Gate
	Tracker     *location.Tracker
	Store       Store
	Locker      Locker
	Notifier    Notifier
	Sink        Sink
	Clock       func() time.Time
	Tick        time.Duration
	Logger      *slog.Logger
}

// View owns the tracker, gate and handler for one signed-in participant and
// keeps the latest eligibility state.
type View struct {
	participant models.Participant
	sessions    SessionSource
	gate        *eligibility.Gate
	tracker     *location.Tracker
	handler     *Handler
	sink        Sink
	now         func() time.Time
	tick        time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	open      bool
	session   *models.Session
	state     eligibility.State
	published bool
	stopTick  context.CancelFunc
	tickDone  chan struct{}
}

func NewView(d ViewDeps) *View {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	v := &View{
		participant: d.Participant,
		sessions:    d.Sessions,
		gate:        d.Gate,
		tracker:     d.Tracker,
		sink:        d.Sink,
		now:         d.Clock,
		tick:        d.Tick,
		logger:      d.Logger.With("user_id", d.Participant.ID),
	}
	opts := []HandlerOption{
		WithClock(d.Clock),
		WithHandlerLogger(v.logger),
		WithPhaseListener(v.publishPhase),
	}
	if d.Locker != nil {
		opts = append(opts, WithLocker(d.Locker))
	}
	if d.Notifier != nil {
		opts = append(opts, WithNotifier(d.Notifier))
	}
	v.handler = NewHandler(d.Participant, d.Gate.Window(), d.Store, opts...)
	return v
}

func (v *View) Participant() models.Participant {
	return v.participant
}

func (v *View) Tracker() *location.Tracker {
	return v.tracker
}

func (v *View) Handler() *Handler {
	return v.handler
}

// Open loads today's session and any earlier check-in, asks for location
// permission and publishes the first state. Opening an open view refreshes it
// and restarts tracking if the last watch ended.
func (v *View) Open(ctx context.Context) (Snapshot, error) {
	v.mu.Lock()
	if v.open {
		v.mu.Unlock()
		v.ResumeTracking(ctx)
		v.Refresh(ctx)
		return v.Snapshot(), nil
	}
	v.open = true
	v.mu.Unlock()

	v.loadSession(ctx)
	v.tracker.OnUpdate(func(location.Update) {
		v.Recompute(context.Background())
	})
	if _, err := v.tracker.RequestPermission(ctx); err != nil {
		v.logger.Warn("location permission request failed", "error", err)
	}

	if v.tick > 0 {
		tickCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		v.mu.Lock()
		v.stopTick = cancel
		v.tickDone = done
		v.mu.Unlock()
		go v.runTicker(tickCtx, done)
	}

	v.Recompute(ctx)
	return v.Snapshot(), nil
}

// ResumeTracking asks for location again when no watch is running, e.g.
// after the device reported the position unavailable.
func (v *View) ResumeTracking(ctx context.Context) {
	if !v.isOpen() || v.tracker.Tracking() {
		return
	}
	if _, err := v.tracker.RequestPermission(ctx); err != nil {
		v.logger.Warn("location permission request failed", "error", err)
	}
}

// Refresh reloads the session, for instance after it was edited.
func (v *View) Refresh(ctx context.Context) {
	if !v.isOpen() {
		return
	}
	v.loadSession(ctx)
	v.Recompute(ctx)
}

func (v *View) loadSession(ctx context.Context) {
	session, err := v.sessions.FindTodaySession(ctx, v.now())
	if err != nil {
		v.logger.Error("failed to load today's session", "error", err)
		return
	}
	v.SetSession(ctx, session)
}

// SetSession replaces the session and reloads the check-in state for it.
func (v *View) SetSession(ctx context.Context, session *models.Session) {
	v.mu.Lock()
	v.session = session
	v.mu.Unlock()

	if err := v.handler.Load(ctx, session); err != nil {
		v.logger.Error("failed to load attendance", "error", err)
	}
}

// Recompute evaluates the gate against the current clock, session and
// position and publishes the result when it differs from the last one.
func (v *View) Recompute(ctx context.Context) eligibility.State {
	pos, locErr := v.tracker.Latest()

	v.mu.Lock()
	st := v.gate.Recompute(eligibility.Inputs{
		Now:         v.now(),
		Session:     v.session,
		Position:    pos,
		LocationErr: locErr,
	})
	changed := !v.published || st != v.state
	v.state = st
	v.published = true
	open := v.open
	v.mu.Unlock()

	if changed && open && v.sink != nil {
		if err := v.sink.PublishEligibility(ctx, v.participant.ID, v.Snapshot()); err != nil {
			v.logger.Warn("failed to publish eligibility", "error", err)
		}
	}
	return st
}

// Submit is the participant's check-in intent.
func (v *View) Submit(ctx context.Context) (*models.AttendanceRecord, error) {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return nil, status.ErrViewNotOpen
	}
	session := v.session
	v.mu.Unlock()

	rec, err := v.handler.Submit(ctx, session, func(now time.Time) eligibility.State {
		pos, locErr := v.tracker.Latest()
		return v.gate.Recompute(eligibility.Inputs{
			Now:         now,
			Session:     session,
			Position:    pos,
			LocationErr: locErr,
		})
	})
	v.Recompute(ctx)
	return rec, err
}

func (v *View) State() eligibility.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) Session() *models.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	snap := Snapshot{
		Session:     v.session,
		Eligibility: v.state,
	}
	v.mu.Unlock()

	snap.Phase = v.handler.Phase()
	snap.Record = v.handler.Record()
	snap.Permission = v.tracker.Permission()
	snap.Tracking = v.tracker.Tracking()
	return snap
}

// Close stops location tracking and the ticker. It must not be called from
// a tracker callback.
func (v *View) Close() {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return
	}
	v.open = false
	stop, done := v.stopTick, v.tickDone
	v.stopTick, v.tickDone = nil, nil
	v.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	v.tracker.Close()
}

func (v *View) isOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

func (v *View) runTicker(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(v.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Recompute(ctx)
		}
	}
}

func (v *View) publishPhase(phase Phase, rec *models.AttendanceRecord) {
	if v.sink == nil || !v.isOpen() {
		return
	}
	if err := v.sink.PublishCheckIn(context.Background(), v.participant.ID, phase, rec); err != nil {
		v.logger.Warn("failed to publish check-in phase", "phase", phase, "error", err)
	}
}
