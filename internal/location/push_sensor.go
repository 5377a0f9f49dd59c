package location

import (
	"context"
	"sync"
)

const pushBuffer = 16

// PushSensor is a Sensor fed from outside, typically by HTTP handlers relaying
// what the participant's device reports.
type PushSensor struct {
	mu         sync.Mutex
	permission PermissionState
	active     chan Reading
	changes    chan PermissionState
}

func NewPushSensor(initial PermissionState) *PushSensor {
	if !initial.Valid() {
		initial = PermissionPrompt
	}
	return &PushSensor{
		permission: initial,
		changes:    make(chan PermissionState, 8),
	}
}

func (s *PushSensor) QueryPermission(ctx context.Context) (PermissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

// Prompt cannot block on the device, so it reports the current state; the
// answer arrives later through SetPermission.
func (s *PushSensor) Prompt(ctx context.Context) (PermissionState, error) {
	return s.QueryPermission(ctx)
}

// Watch installs a new active channel. A cancelled ctx never replaces the
// current watch.
func (s *PushSensor) Watch(ctx context.Context) (<-chan Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Reading, pushBuffer)

	s.mu.Lock()
	s.active = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.active == ch {
			s.active = nil
		}
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *PushSensor) PermissionChanges() <-chan PermissionState {
	return s.changes
}

// Push delivers a reading to the active watch. It reports false when nothing
// is watching or the watch is backed up.
func (s *PushSensor) Push(r Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	select {
	case s.active <- r:
		return true
	default:
		return false
	}
}

// SetPermission records a new device permission state and announces it when it changed.
func (s *PushSensor) SetPermission(state PermissionState) bool {
	s.mu.Lock()
	changed := s.permission != state
	s.permission = state
	s.mu.Unlock()

	if !changed {
		return false
	}
	select {
	case s.changes <- state:
	default:
	}
	return true
}

func (s *PushSensor) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
