// Package checkin records a participant's attendance for a session exactly once.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"checkin-system/internal/eligibility"
	"checkin-system/internal/status"
	"checkin-system/internal/window"
	"checkin-system/models"
)

type Phase string

const (
	NotCheckedIn Phase = "not_checked_in"
	Submitting   Phase = "submitting"
	CheckedIn    Phase = "checked_in"
)

// Store is the attendance side of the document store. FindAttendance returns
// nil without error when no record exists. AddAttendance must report a
// uniqueness violation as status.ErrDuplicateCheckIn.
type Store interface {
	FindAttendance(ctx context.Context, userID, sessionID string) (*models.AttendanceRecord, error)
	AddAttendance(ctx context.Context, rec models.AttendanceRecord) (*models.AttendanceRecord, error)
}

type Notifier interface {
	NotifyCheckIn(ctx context.Context, rec models.AttendanceRecord) error
}

// Locker serializes submissions for one (user, session) pair across clients.
type Locker interface {
	Acquire(ctx context.Context, userID, sessionID string) (release func(), err error)
}

// NotEligibleError is returned when the gate refuses a submission at commit time.
type NotEligibleError struct {
	State eligibility.State
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("check-in: not eligible (%s): %s", e.State.Reason, e.State.Message)
}

func (e *NotEligibleError) Unwrap() error {
	return status.ErrNotEligible
}

// Message is the staff notification text for a committed check-in.
func Message(rec models.AttendanceRecord) string {
	late := ""
	if rec.IsLate {
		late = " late"
	}
	return fmt.Sprintf("%s (%s) has checked in%s", rec.UserName, rec.UserRoleLabel, late)
}

type HandlerOption func(*Handler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

func WithLocker(l Locker) HandlerOption {
	return func(h *Handler) {
		h.locker = l
	}
}

func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		h.notifier = n
	}
}

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithPhaseListener registers fn to hear every phase transition. It is called
// without the handler lock held.
func WithPhaseListener(fn func(Phase, *models.AttendanceRecord)) HandlerOption {
	return func(h *Handler) {
		h.onPhase = fn
	}
}

// Handler is the per-participant check-in state machine.
type Handler struct {
	participant models.Participant
	window      models.CheckInWindow
	store       Store
	locker      Locker
	notifier    Notifier
	now         func() time.Time
	logger      *slog.Logger
	onPhase     func(Phase, *models.AttendanceRecord)

	mu        sync.Mutex
	phase     Phase
	sessionID string
	record    *models.AttendanceRecord
}

func NewHandler(participant models.Participant, cfg models.CheckInWindow, store Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		participant: participant,
		window:      cfg,
		store:       store,
		now:         time.Now,
		logger:      slog.Default(),
		phase:       NotCheckedIn,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// Record returns the committed attendance record, if any.
func (h *Handler) Record() *models.AttendanceRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.record == nil {
		return nil
	}
	rec := *h.record
	return &rec
}

// Load binds the handler to session and picks up a check-in made earlier,
// possibly from another client. A submission in flight is left alone.
func (h *Handler) Load(ctx context.Context, session *models.Session) error {
	h.mu.Lock()
	if h.phase == Submitting {
		h.mu.Unlock()
		return nil
	}
	if session == nil {
		h.reset("")
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	rec, err := h.store.FindAttendance(ctx, h.participant.ID, session.ID)
	if err != nil {
		return fmt.Errorf("load attendance: %w: %w", status.ErrStoreIO, err)
	}

	h.mu.Lock()
	if h.phase == Submitting {
		h.mu.Unlock()
		return nil
	}
	h.reset(session.ID)
	if rec != nil {
		h.phase = CheckedIn
		h.record = rec
	}
	phase, out := h.phase, h.record
	h.mu.Unlock()

	h.emit(phase, out)
	return nil
}

func (h *Handler) reset(sessionID string) {
	h.sessionID = sessionID
	h.phase = NotCheckedIn
	h.record = nil
}

// Submit re-validates eligibility at commit time and writes the attendance
// record. validate must evaluate the gate against the instant it is given.
func (h *Handler) Submit(ctx context.Context, session *models.Session, validate func(now time.Time) eligibility.State) (*models.AttendanceRecord, error) {
	if session == nil {
		return nil, status.ErrNoSession
	}

	h.mu.Lock()
	if h.sessionID != session.ID {
		h.reset(session.ID)
	}
	switch h.phase {
	case CheckedIn:
		rec := h.record
		h.mu.Unlock()
		return rec, status.ErrDuplicateCheckIn
	case Submitting:
		h.mu.Unlock()
		return nil, fmt.Errorf("submission in flight: %w", status.ErrDuplicateCheckIn)
	}
	h.phase = Submitting
	h.mu.Unlock()

	now := h.now()
	if st := validate(now); !st.CanCheckIn {
		h.mu.Lock()
		h.phase = NotCheckedIn
		h.mu.Unlock()
		return nil, &NotEligibleError{State: st}
	}
	h.emit(Submitting, nil)

	rec, err := h.commit(ctx, session, now)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrDuplicateCheckIn) && rec != nil:
		h.finish(rec)
		return rec, err
	default:
		h.revert()
		h.logger.Error("check-in write failed", "user_id", h.participant.ID, "session_id", session.ID, "error", err)
		return nil, err
	}

	h.finish(rec)
	h.logger.Info("participant checked in",
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"late", rec.IsLate,
	)

	if h.notifier != nil {
		go h.notify(context.WithoutCancel(ctx), *rec)
	}

	return rec, nil
}

func (h *Handler) commit(ctx context.Context, session *models.Session, now time.Time) (*models.AttendanceRecord, error) {
	if h.locker != nil {
		release, err := h.locker.Acquire(ctx, h.participant.ID, session.ID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	existing, err := h.store.FindAttendance(ctx, h.participant.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w: %w", status.ErrStoreIO, err)
	}
	if existing != nil {
		return existing, status.ErrDuplicateCheckIn
	}

	late := window.IsLate(now, session.StartTime, h.window)
	rec := models.AttendanceRecord{
		UserID:        h.participant.ID,
		UserName:      h.participant.DisplayName(),
		UserRoleLabel: h.participant.RoleLabel(),
		SessionID:     session.ID,
		ProductionID:  session.ProductionID,
		CheckInTime:   now,
		IsLate:        late,
		Status:        models.AttendancePresent,
	}
	if late {
		rec.Notes = "Checked in late"
	}

	// the write runs to completion even if the caller goes away
	saved, err := h.store.AddAttendance(context.WithoutCancel(ctx), rec)
	if errors.Is(err, status.ErrDuplicateCheckIn) {
		existing, ferr := h.store.FindAttendance(context.WithoutCancel(ctx), h.participant.ID, session.ID)
		if ferr != nil || existing == nil {
			return nil, fmt.Errorf("reload attendance: %w: %w", status.ErrStoreIO, errors.Join(err, ferr))
		}
		return existing, status.ErrDuplicateCheckIn
	}
	if err != nil {
		return nil, fmt.Errorf("add attendance: %w: %w", status.ErrStoreIO, err)
	}
	return saved, nil
}

// notify runs detached from the submission; its failure never affects the record.
func (h *Handler) notify(ctx context.Context, rec models.AttendanceRecord) {
	if err := h.notifier.NotifyCheckIn(ctx, rec); err != nil {
		h.logger.Warn("check-in notification failed", "user_id", rec.UserID, "session_id", rec.SessionID, "error", err)
	}
}

func (h *Handler) finish(rec *models.AttendanceRecord) {
	h.mu.Lock()
	h.phase = CheckedIn
	h.record = rec
	h.mu.Unlock()
	h.emit(CheckedIn, rec)
}

func (h *Handler) revert() {
	h.mu.Lock()
	h.phase = NotCheckedIn
	h.mu.Unlock()
	h.emit(NotCheckedIn, nil)
}

func (h *Handler) emit(phase Phase, rec *models.AttendanceRecord) {
	if h.onPhase != nil {
		h.onPhase(phase, rec)
	}
}
