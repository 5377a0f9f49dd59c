// Package store maps the check-in domain onto PocketBase collections.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	CollectionSessions      = "sessions"
	CollectionAttendance    = "attendance"
	CollectionCast          = "production_cast"
	CollectionStaff         = "production_staff"
	CollectionNotifications = "notifications"
	CollectionUsers         = "users"
)

type Store struct {
	app core.App
	loc *time.Location
}

// New returns a store whose notion of "today" is taken in loc.
func New(app core.App, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{app: app, loc: loc}
}

// FindTodaySession returns the earliest session starting on now's calendar
// day, or nil when none is scheduled.
func (s *Store) FindTodaySession(ctx context.Context, now time.Time) (*models.Session, error) {
	from, to := DayBounds(now, s.loc)

	records := []*core.Record{}
	err := s.app.RecordQuery(CollectionSessions).
		AndWhere(dbx.NewExp("start_time >= {:from} AND start_time < {:to}", dbx.Params{
			"from": from.UTC().Format(types.DefaultDateLayout),
			"to":   to.UTC().Format(types.DefaultDateLayout),
		})).
		OrderBy("start_time ASC").
		Limit(1).
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("find today's session: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return SessionFromRecord(records[0]), nil
}

func (s *Store) FindSession(ctx context.Context, id string) (*models.Session, error) {
	record, err := s.app.FindRecordById(CollectionSessions, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
	return SessionFromRecord(record), nil
}

func (s *Store) FindAttendance(ctx context.Context, userID, sessionID string) (*models.AttendanceRecord, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(CollectionAttendance).
		AndWhere(dbx.HashExp{"user_id": userID, "session_id": sessionID}).
		Limit(1).
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := AttendanceFromRecord(records[0])
	return &rec, nil
}

func (s *Store) ListAttendanceBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(CollectionAttendance).
		AndWhere(dbx.HashExp{"session_id": sessionID}).
		OrderBy("check_in_time ASC").
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}

	out := make([]models.AttendanceRecord, 0, len(records))
	for _, r := range records {
		out = append(out, AttendanceFromRecord(r))
	}
	return out, nil
}

func (s *Store) ListCast(ctx context.Context, productionID string) ([]models.CastMember, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(CollectionCast).
		AndWhere(dbx.HashExp{"production_id": productionID}).
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("list cast: %w", err)
	}

	out := make([]models.CastMember, 0, len(records))
	for _, r := range records {
		out = append(out, models.CastMember{
			UserID:      r.GetString("user_id"),
			DisplayName: r.GetString("display_name"),
			Character:   r.GetString("character"),
		})
	}
	return out, nil
}

func (s *Store) ListStaff(ctx context.Context, productionID string, roles []string) ([]models.StaffMember, error) {
	if len(roles) == 0 {
		return []models.StaffMember{}, nil
	}
	roleValues := make([]any, len(roles))
	for i, r := range roles {
		roleValues[i] = r
	}

	records := []*core.Record{}
	err := s.app.RecordQuery(CollectionStaff).
		AndWhere(dbx.HashExp{"production_id": productionID}).
		AndWhere(dbx.In("role", roleValues...)).
		WithContext(ctx).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}

	out := make([]models.StaffMember, 0, len(records))
	for _, r := range records {
		out = append(out, models.StaffMember{
			UserID:       r.GetString("user_id"),
			ProductionID: r.GetString("production_id"),
			Role:         r.GetString("role"),
		})
	}
	return out, nil
}

// AddAttendance inserts rec. A (user_id, session_id) collision is reported as
// status.ErrDuplicateCheckIn.
func (s *Store) AddAttendance(ctx context.Context, rec models.AttendanceRecord) (*models.AttendanceRecord, error) {
	collection, err := s.app.FindCollectionByNameOrId(CollectionAttendance)
	if err != nil {
		return nil, fmt.Errorf("attendance collection: %w", err)
	}

	record := core.NewRecord(collection)
	ApplyAttendance(record, rec)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", status.ErrDuplicateCheckIn, err)
		}
		return nil, fmt.Errorf("save attendance: %w", err)
	}

	saved := AttendanceFromRecord(record)
	return &saved, nil
}

// AddNotifications persists all notifications in one transaction.
func (s *Store) AddNotifications(ctx context.Context, notes []models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	collection, err := s.app.FindCollectionByNameOrId(CollectionNotifications)
	if err != nil {
		return fmt.Errorf("notifications collection: %w", err)
	}

	return s.app.RunInTransaction(func(txApp core.App) error {
		for _, n := range notes {
			record := core.NewRecord(collection)
			ApplyNotification(record, n)
			if err := txApp.SaveWithContext(ctx, record); err != nil {
				return fmt.Errorf("save notification for %s: %w", n.UserID, err)
			}
		}
		return nil
	})
}

// DayBounds returns the [start, end) of now's calendar day in loc.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func SessionFromRecord(r *core.Record) *models.Session {
	s := &models.Session{
		ID:             r.Id,
		ProductionID:   r.GetString("production_id"),
		ProductionName: r.GetString("production_name"),
		StartTime:      r.GetDateTime("start_time").Time(),
		EndTime:        r.GetDateTime("end_time").Time(),
		Location:       r.GetString("location"),
		Scenes:         r.GetString("scenes"),
	}
	if radius := r.GetFloat("venue_radius"); radius > 0 {
		s.VenueOverride = &models.Venue{
			Name:         r.GetString("location"),
			Latitude:     r.GetFloat("venue_latitude"),
			Longitude:    r.GetFloat("venue_longitude"),
			RadiusMeters: radius,
		}
	}
	return s
}

func AttendanceFromRecord(r *core.Record) models.AttendanceRecord {
	return models.AttendanceRecord{
		ID:            r.Id,
		UserID:        r.GetString("user_id"),
		UserName:      r.GetString("user_name"),
		UserRoleLabel: r.GetString("user_role"),
		SessionID:     r.GetString("session_id"),
		ProductionID:  r.GetString("production_id"),
		CheckInTime:   r.GetDateTime("check_in_time").Time(),
		IsLate:        r.GetBool("is_late"),
		Status:        r.GetString("status"),
		Notes:         r.GetString("notes"),
	}
}

func ApplyAttendance(r *core.Record, rec models.AttendanceRecord) {
	r.Set("user_id", rec.UserID)
	r.Set("user_name", rec.UserName)
	r.Set("user_role", rec.UserRoleLabel)
	r.Set("session_id", rec.SessionID)
	r.Set("production_id", rec.ProductionID)
	r.Set("check_in_time", rec.CheckInTime)
	r.Set("is_late", rec.IsLate)
	r.Set("status", rec.Status)
	r.Set("notes", rec.Notes)
}

func ApplyNotification(r *core.Record, n models.Notification) {
	r.Set("user_id", n.UserID)
	r.Set("title", n.Title)
	r.Set("message", n.Message)
	r.Set("type", n.Type)
	r.Set("read", n.Read)
	r.Set("data", n.Data)
}

// ParticipantFromRecord reads the signed-in user's profile from an auth record.
func ParticipantFromRecord(r *core.Record) models.Participant {
	return models.Participant{
		ID:        r.Id,
		Name:      r.GetString("name"),
		Email:     r.Email(),
		Role:      r.GetString("role"),
		Character: r.GetString("character"),
	}
}

// IsUniqueViolation reports whether err came from a unique index, either as
// a record validation error or straight from SQLite.
func IsUniqueViolation(err error) bool {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			var ve validation.Error
			if errors.As(fieldErr, &ve) && ve.Code() == "validation_not_unique" {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
