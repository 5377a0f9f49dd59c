package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"checkin-system/models"
)

// DefaultRetryDelay is the fixed backoff before a timed-out watch is restarted.
const DefaultRetryDelay = 5 * time.Second

var ErrTrackerClosed = errors.New("location: tracker closed")

// Update is pushed to the consumer after every change of tracker state.
type Update struct {
	Position   *models.Position
	Err        error
	Permission PermissionState
}

type Option func(*Tracker)

func WithRetryDelay(d time.Duration) Option {
	return func(t *Tracker) {
		t.retryDelay = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// Tracker owns a single active watch on a Sensor and the latest reading it produced.
type Tracker struct {
	sensor     Sensor
	retryDelay time.Duration
	logger     *slog.Logger

	base       context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	permOnce   sync.Once
	startMu    sync.Mutex

	mu         sync.Mutex
	onUpdate   func(Update)
	gen        uint64
	cancel     context.CancelFunc
	retry      *time.Timer
	latest     *models.Position
	lastErr    error
	permission PermissionState
	tracking   bool
	closed     bool
}

func NewTracker(sensor Sensor, opts ...Option) *Tracker {
	base, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		sensor:     sensor,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		base:       base,
		baseCancel: cancel,
		permission: PermissionPrompt,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnUpdate registers the consumer. Callbacks run on tracker goroutines and
// must not call Close.
func (t *Tracker) OnUpdate(fn func(Update)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// RequestPermission resolves the permission state and starts tracking when granted.
func (t *Tracker) RequestPermission(ctx context.Context) (PermissionState, error) {
	t.permOnce.Do(func() {
		t.wg.Add(1)
		go t.watchPermission()
	})

	state, err := t.sensor.QueryPermission(ctx)
	if err != nil {
		return "", err
	}

	if state == PermissionPrompt {
		state, err = t.sensor.Prompt(ctx)
		if errors.Is(err, ErrPermissionDenied) {
			state, err = PermissionDenied, nil
		}
		if err != nil {
			t.fail(err)
			return state, err
		}
	}

	return state, t.applyPermission(state)
}

// Start begins a new watch, stopping the current one first.
func (t *Tracker) Start() error {
	err := t.start()
	switch {
	case err == nil, errors.Is(err, errWatchSuperseded):
		return nil
	case errors.Is(err, ErrTrackerClosed):
		return err
	}
	t.fail(err)
	return err
}

var errWatchSuperseded = errors.New("location: watch superseded")

// start holds startMu across sensor.Watch so a slow Watch can never finish
// after a newer one and replace it.
func (t *Tracker) start() error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	t.stopLocked()
	t.gen++
	gen := t.gen
	watchCtx, cancel := context.WithCancel(t.base)
	t.cancel = cancel
	t.tracking = true
	t.wg.Add(1)
	t.mu.Unlock()

	readings, err := t.sensor.Watch(watchCtx)
	if err != nil {
		stopped := watchCtx.Err() != nil
		t.wg.Done()
		cancel()
		t.mu.Lock()
		current := t.gen == gen
		if current {
			t.tracking = false
			t.cancel = nil
		}
		t.mu.Unlock()
		if stopped || !current {
			return errWatchSuperseded
		}
		return err
	}

	go t.consume(gen, readings)
	return nil
}

// Stop cancels the active watch and any pending retry.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopLocked()
	t.mu.Unlock()

	t.baseCancel()
	t.wg.Wait()
}

// Latest returns the freshest position and the last sensing error.
func (t *Tracker) Latest() (*models.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil, t.lastErr
	}
	pos := *t.latest
	return &pos, t.lastErr
}

func (t *Tracker) Permission() PermissionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

func (t *Tracker) stopLocked() {
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.tracking = false
}

func (t *Tracker) consume(gen uint64, readings <-chan Reading) {
	defer t.wg.Done()
	for r := range readings {
		if !t.handle(gen, r) {
			return
		}
	}
}

// handle applies one reading and reports whether the watch is still current.
func (t *Tracker) handle(gen uint64, r Reading) bool {
	t.mu.Lock()
	if gen != t.gen || !t.tracking {
		t.mu.Unlock()
		return false
	}

	var upd Update
	switch {
	case r.Err == nil && r.Position != nil:
		pos := *r.Position
		t.latest = &pos
		t.lastErr = nil
		upd.Position = &pos
	case errors.Is(r.Err, ErrTimeout):
		t.lastErr = ErrTimeout
		t.scheduleRetryLocked(gen)
		upd.Err = ErrTimeout
	case errors.Is(r.Err, ErrPermissionDenied):
		t.permission = PermissionDenied
		t.latest = nil
		t.lastErr = ErrPermissionDenied
		t.stopLocked()
		upd.Err = ErrPermissionDenied
	case r.Err != nil:
		t.latest = nil
		t.lastErr = r.Err
		t.stopLocked()
		upd.Err = r.Err
	default:
		t.mu.Unlock()
		return true
	}
	upd.Permission = t.permission
	current := t.tracking
	t.mu.Unlock()

	if upd.Err != nil {
		t.logger.Warn("location sensing error", "error", upd.Err, "retrying", errors.Is(upd.Err, ErrTimeout))
	}
	t.emit(upd)
	return current
}

func (t *Tracker) scheduleRetryLocked(gen uint64) {
	if t.retry != nil {
		return
	}
	t.retry = time.AfterFunc(t.retryDelay, func() {
		t.mu.Lock()
		stale := t.gen != gen || !t.tracking || t.closed
		t.retry = nil
		t.mu.Unlock()
		if stale {
			return
		}
		if err := t.Start(); err != nil {
			t.logger.Error("location watch restart failed", "error", err)
		}
	})
}

func (t *Tracker) watchPermission() {
	defer t.wg.Done()
	changes := t.sensor.PermissionChanges()
	for {
		select {
		case <-t.base.Done():
			return
		case state, ok := <-changes:
			if !ok {
				return
			}
			if err := t.applyPermission(state); err != nil {
				t.logger.Error("apply permission change", "state", state, "error", err)
			}
		}
	}
}

// applyPermission records state before any consumer hears about it.
func (t *Tracker) applyPermission(state PermissionState) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	t.permission = state
	switch state {
	case PermissionGranted:
		t.lastErr = nil
		t.mu.Unlock()
		if err := t.Start(); err != nil {
			return err
		}
	case PermissionDenied:
		t.stopLocked()
		t.latest = nil
		t.lastErr = ErrPermissionDenied
		t.mu.Unlock()
	default:
		t.stopLocked()
		t.latest = nil
		t.mu.Unlock()
	}

	pos, err := t.Latest()
	t.emit(Update{Position: pos, Err: err, Permission: state})
	return nil
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.lastErr = err
	perm := t.permission
	t.mu.Unlock()
	t.emit(Update{Err: err, Permission: perm})
}

func (t *Tracker) emit(u Update) {
	t.mu.Lock()
	fn := t.onUpdate
	t.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}
