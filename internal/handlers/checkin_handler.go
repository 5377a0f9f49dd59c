package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"checkin-system/internal/checkin"
	"checkin-system/internal/location"
	"checkin-system/internal/roster"
	"checkin-system/internal/services"
	"checkin-system/internal/status"
	"checkin-system/internal/store"
	"checkin-system/models"
	"checkin-system/monitoring"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

var validate = validator.New()

type CheckInHandler struct {
	registry *services.ViewRegistry
	roster   *services.RosterService
}

func NewCheckInHandler(registry *services.ViewRegistry, roster *services.RosterService) *CheckInHandler {
	return &CheckInHandler{
		registry: registry,
		roster:   roster,
	}
}

type openViewRequest struct {
	Permission string `json:"permission" validate:"omitempty,oneof=granted prompt denied"`
}

type permissionRequest struct {
	State string `json:"state" validate:"required,oneof=granted prompt denied"`
}

type positionRequest struct {
	Latitude       float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64   `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	ObservedAt     time.Time `json:"observed_at"`
}

type positionErrorRequest struct {
	Code string `json:"code" validate:"required,oneof=permission_denied position_unavailable timeout unsupported"`
}

func participant(e *core.RequestEvent) (models.Participant, error) {
	if e.Auth == nil {
		return models.Participant{}, apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return store.ParticipantFromRecord(e.Auth), nil
}

func bindAndValidate(e *core.RequestEvent, dst any) error {
	if err := e.BindBody(dst); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(e, err)
	}
	return nil
}

func validationError(e *core.RequestEvent, err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apis.NewBadRequestError("Invalid request", err)
	}
	fields := make(map[string]string, len(ve))
	for _, fieldErr := range ve {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return e.JSON(http.StatusBadRequest, map[string]any{
		"status":  http.StatusBadRequest,
		"message": "Validation failed",
		"errors":  fields,
	})
}

// OpenView opens the caller's check-in view, or refreshes it.
func (h *CheckInHandler) OpenView(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}

	var req openViewRequest
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}
	permission := location.PermissionState(req.Permission)
	if permission == "" {
		permission = location.PermissionPrompt
	}

	snap, err := h.registry.Open(e.Request.Context(), p, permission)
	if err != nil {
		return apis.NewBadRequestError("Failed to open check-in", err)
	}
	return e.JSON(http.StatusOK, snap)
}

func (h *CheckInHandler) CloseView(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	h.registry.Close(p.ID)
	return e.JSON(http.StatusOK, map[string]any{"message": "Check-in view closed"})
}

func (h *CheckInHandler) GetState(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	snap, err := h.registry.Snapshot(p.ID)
	if err != nil {
		return viewError(err)
	}
	return e.JSON(http.StatusOK, snap)
}

func (h *CheckInHandler) SetPermission(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	var req permissionRequest
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}
	if err := h.registry.SetPermission(p.ID, location.PermissionState(req.State)); err != nil {
		return viewError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"permission": req.State})
}

// ReportPosition relays a device reading to the caller's tracker.
func (h *CheckInHandler) ReportPosition(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	var req positionRequest
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}

	if req.ObservedAt.IsZero() {
		req.ObservedAt = time.Now()
	}

	accepted, err := h.registry.PushPosition(p.ID, models.Position{
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		ObservedAt:     req.ObservedAt,
	})
	if err != nil {
		return viewError(err)
	}
	monitoring.TrackPositionUpdate(accepted)
	return e.JSON(http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (h *CheckInHandler) ReportPositionError(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	var req positionErrorRequest
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}

	accepted, err := h.registry.PushError(p.ID, location.ErrorFromCode(req.Code))
	if err != nil {
		return viewError(err)
	}
	monitoring.TrackSensingError(req.Code)
	return e.JSON(http.StatusAccepted, map[string]any{"accepted": accepted})
}

// SubmitCheckIn records the caller's attendance for today's session.
func (h *CheckInHandler) SubmitCheckIn(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}

	rec, state, err := h.registry.Submit(e.Request.Context(), p.ID)
	switch {
	case err == nil:
		monitoring.TrackCheckIn("success")
		if rec.IsLate {
			monitoring.TrackLateCheckIn()
		}
		if state.LocationKnown {
			monitoring.ObserveCheckInDistance(state.DistanceMeters)
		}
		return e.JSON(http.StatusCreated, map[string]any{
			"message": "Successfully checked in",
			"record":  rec,
		})

	case errors.Is(err, status.ErrDuplicateCheckIn):
		monitoring.TrackCheckIn("duplicate")
		return e.JSON(http.StatusConflict, map[string]any{
			"message": "You have already checked in for this session",
			"record":  rec,
		})

	case errors.Is(err, status.ErrNotEligible):
		monitoring.TrackCheckIn("not_eligible")
		var notEligible *checkin.NotEligibleError
		if errors.As(err, &notEligible) {
			state = notEligible.State
		}
		return e.JSON(http.StatusBadRequest, map[string]any{
			"message":     state.Message,
			"eligibility": state,
		})

	case errors.Is(err, status.ErrNoSession):
		monitoring.TrackCheckIn("no_session")
		return apis.NewBadRequestError("No rehearsal scheduled for today", nil)

	case errors.Is(err, status.ErrCheckInBusy):
		monitoring.TrackCheckIn("busy")
		return apis.NewApiError(http.StatusConflict, "Check-in already in progress", nil)

	case errors.Is(err, status.ErrViewNotOpen):
		return viewError(err)

	default:
		monitoring.TrackCheckIn("store_error")
		slog.Error("Check-in failed", "user_id", p.ID, "error", err)
		return apis.NewApiError(http.StatusServiceUnavailable, "Failed to check in. Please try again.", nil)
	}
}

// GetRoster returns today's attendance for staff.
func (h *CheckInHandler) GetRoster(e *core.RequestEvent) error {
	p, err := participant(e)
	if err != nil {
		return err
	}
	if !p.IsStaff() {
		return apis.NewForbiddenError("Staff role required", nil)
	}

	report := h.roster.Today(e.Request.Context())
	checkedIn, missing := roster.Split(report.Entries)
	return e.JSON(http.StatusOK, map[string]any{
		"session":     report.Session,
		"start_label": report.StartLabel,
		"summary":     report.Summary,
		"entries":     h.rows(report.Entries),
		"checked_in":  h.rows(checkedIn),
		"missing":     h.rows(missing),
	})
}

type rosterRow struct {
	models.RosterEntry
	StatusLine string `json:"status_line"`
}

func (h *CheckInHandler) rows(entries []models.RosterEntry) []rosterRow {
	lines := h.roster.Lines(entries)
	out := make([]rosterRow, len(entries))
	for i, e := range entries {
		out[i] = rosterRow{RosterEntry: e, StatusLine: lines[i]}
	}
	return out
}

func viewError(err error) error {
	if errors.Is(err, status.ErrViewNotOpen) {
		return apis.NewNotFoundError("Check-in view is not open", nil)
	}
	return apis.NewBadRequestError("Invalid request", err)
}
