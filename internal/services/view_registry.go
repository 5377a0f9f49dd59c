package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"checkin-system/internal/checkin"
	"checkin-system/internal/eligibility"
	"checkin-system/internal/location"
	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/monitoring"
)

// RegistryConfig wires every view the registry creates. Views idle longer
// than IdleTTL are closed by the sweep that runs every CleanupInterval.
type RegistryConfig struct {
	Gate            *eligibility.Gate
	Sessions        checkin.SessionSource
	Store           checkin.Store
	Locker          checkin.Locker
	Notifier        checkin.Notifier
	Sink            checkin.Sink
	Clock           func() time.Time
	Tick            time.Duration
	RetryDelay      time.Duration
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

type viewEntry struct {
	view     *checkin.View
	sensor   *location.PushSensor
	lastSeen time.Time
}

// ViewRegistry keeps one check-in view per signed-in participant. Devices
// feed their view through its push sensor.
type ViewRegistry struct {
	cfg RegistryConfig
	now func() time.Time

	mu    sync.Mutex
	views map[string]*viewEntry
}

func NewViewRegistry(cfg RegistryConfig) *ViewRegistry {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = location.DefaultRetryDelay
	}
	return &ViewRegistry{
		cfg:   cfg,
		now:   time.Now,
		views: make(map[string]*viewEntry),
	}
}

// Open creates the participant's view, or refreshes the existing one, and
// returns its state.
func (r *ViewRegistry) Open(ctx context.Context, p models.Participant, permission location.PermissionState) (checkin.Snapshot, error) {
	r.mu.Lock()
	entry, ok := r.views[p.ID]
	if !ok {
		sensor := location.NewPushSensor(permission)
		tracker := location.NewTracker(sensor,
			location.WithRetryDelay(r.cfg.RetryDelay),
			location.WithLogger(slog.Default().With("user_id", p.ID)),
		)
		entry = &viewEntry{
			sensor: sensor,
			view: checkin.NewView(checkin.ViewDeps{
				Participant: p,
				Sessions:    r.cfg.Sessions,
				Gate:        r.cfg.Gate,
				Tracker:     tracker,
				Store:       r.cfg.Store,
				Locker:      r.cfg.Locker,
				Notifier:    r.cfg.Notifier,
				Sink:        r.cfg.Sink,
				Clock:       r.cfg.Clock,
				Tick:        r.cfg.Tick,
			}),
		}
		r.views[p.ID] = entry
	}
	entry.lastSeen = r.now()
	count := len(r.views)
	r.mu.Unlock()

	monitoring.SetOpenViews(count)

	if ok && permission.Valid() {
		entry.sensor.SetPermission(permission)
	}
	return entry.view.Open(ctx)
}

// Close dismisses the participant's view.
func (r *ViewRegistry) Close(userID string) bool {
	r.mu.Lock()
	entry, ok := r.views[userID]
	delete(r.views, userID)
	count := len(r.views)
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.view.Close()
	monitoring.SetOpenViews(count)
	return true
}

func (r *ViewRegistry) get(userID string) (*viewEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[userID]
	if !ok {
		return nil, status.ErrViewNotOpen
	}
	entry.lastSeen = r.now()
	return entry, nil
}

func (r *ViewRegistry) Snapshot(userID string) (checkin.Snapshot, error) {
	entry, err := r.get(userID)
	if err != nil {
		return checkin.Snapshot{}, err
	}
	entry.view.Recompute(context.Background())
	return entry.view.Snapshot(), nil
}

func (r *ViewRegistry) View(userID string) (*checkin.View, error) {
	entry, err := r.get(userID)
	if err != nil {
		return nil, err
	}
	return entry.view, nil
}

func (r *ViewRegistry) SetPermission(userID string, state location.PermissionState) error {
	entry, err := r.get(userID)
	if err != nil {
		return err
	}
	if !entry.sensor.SetPermission(state) && state == location.PermissionGranted {
		entry.view.ResumeTracking(context.Background())
	}
	return nil
}

// PushPosition hands a reading to the view's active watch. It reports false
// when the view is not tracking, e.g. before permission was granted.
func (r *ViewRegistry) PushPosition(userID string, pos models.Position) (bool, error) {
	entry, err := r.get(userID)
	if err != nil {
		return false, err
	}
	return entry.sensor.Push(location.Reading{Position: &pos}), nil
}

func (r *ViewRegistry) PushError(userID string, sensingErr error) (bool, error) {
	entry, err := r.get(userID)
	if err != nil {
		return false, err
	}
	return entry.sensor.Push(location.Reading{Err: sensingErr}), nil
}

func (r *ViewRegistry) Submit(ctx context.Context, userID string) (*models.AttendanceRecord, eligibility.State, error) {
	entry, err := r.get(userID)
	if err != nil {
		return nil, eligibility.State{}, err
	}
	rec, err := entry.view.Submit(ctx)
	return rec, entry.view.State(), err
}

// RefreshAll reloads the session of every open view.
func (r *ViewRegistry) RefreshAll(ctx context.Context) {
	for _, entry := range r.entries() {
		entry.view.Refresh(ctx)
	}
}

func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *ViewRegistry) entries() []*viewEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*viewEntry, 0, len(r.views))
	for _, e := range r.views {
		out = append(out, e)
	}
	return out
}

// CleanupInactiveViews closes views idle longer than IdleTTL until ctx is done.
func (r *ViewRegistry) CleanupInactiveViews(ctx context.Context) {
	interval := r.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				slog.Info("Closed inactive check-in views", "count", n)
			}
		}
	}
}

func (r *ViewRegistry) sweep() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*viewEntry
	for userID, e := range r.views {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(r.views, userID)
		}
	}
	count := len(r.views)
	r.mu.Unlock()

	for _, e := range idle {
		e.view.Close()
	}
	monitoring.SetOpenViews(count)
	return len(idle)
}

func (r *ViewRegistry) CloseAll() {
	r.mu.Lock()
	all := r.views
	r.views = make(map[string]*viewEntry)
	r.mu.Unlock()

	for _, e := range all {
		e.view.Close()
	}
	monitoring.SetOpenViews(0)
}
