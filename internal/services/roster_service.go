package services

import (
	"context"
	"log/slog"
	"time"

	"checkin-system/internal/roster"
	"checkin-system/models"

	"golang.org/x/text/language"
)

// RosterSource is the part of the store the roster reads from.
type RosterSource interface {
	FindTodaySession(ctx context.Context, now time.Time) (*models.Session, error)
	ListCast(ctx context.Context, productionID string) ([]models.CastMember, error)
	ListAttendanceBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
}

// RosterReport is what the stage manager's attendance screen shows.
type RosterReport struct {
	Session    *models.Session      `json:"session"`
	StartLabel string               `json:"start_label,omitempty"`
	Summary    roster.Summary       `json:"summary"`
	Entries    []models.RosterEntry `json:"entries"`
}

type RosterService struct {
	source RosterSource
	tag    language.Tag
	loc    *time.Location
	now    func() time.Time
}

func NewRosterService(source RosterSource, tag language.Tag, loc *time.Location) *RosterService {
	if loc == nil {
		loc = time.Local
	}
	return &RosterService{
		source: source,
		tag:    tag,
		loc:    loc,
		now:    time.Now,
	}
}

// Today builds the roster for today's session. Read failures are logged and
// leave the affected part empty.
func (s *RosterService) Today(ctx context.Context) RosterReport {
	now := s.now().In(s.loc)
	report := RosterReport{Entries: []models.RosterEntry{}}

	session, err := s.source.FindTodaySession(ctx, now)
	if err != nil {
		slog.Error("Failed to load today's session for roster", "error", err)
		return report
	}
	if session == nil {
		return report
	}
	report.Session = session
	report.StartLabel = roster.StartLabel(now, session.StartTime)

	cast, err := s.source.ListCast(ctx, session.ProductionID)
	if err != nil {
		slog.Error("Failed to load cast", "production_id", session.ProductionID, "error", err)
		cast = nil
	}

	records, err := s.source.ListAttendanceBySession(ctx, session.ID)
	if err != nil {
		slog.Error("Failed to load attendance", "session_id", session.ID, "error", err)
		records = nil
	}

	report.Entries = roster.Build(cast, records, s.tag)
	report.Summary = roster.Summarize(report.Entries)
	return report
}

// Lines renders each entry's status text in the service's time zone.
func (s *RosterService) Lines(entries []models.RosterEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = roster.StatusLine(e, s.loc)
	}
	return out
}
