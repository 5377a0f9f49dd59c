package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"checkin-system/internal/checkin"
	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/utils"

	pubnub "github.com/pubnub/go"
)

const (
	NotificationTitle = "Check-in Notification"
	NotificationType  = "check_in"
)

// Publisher delivers a message on a realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message map[string]any) error
}

// PubNubPublisher publishes through PubNub behind a circuit breaker.
type PubNubPublisher struct {
	PubNub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{
		PubNub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message map[string]any) error {
	_, err := p.breaker.Execute(ctx, func() (any, error) {
		_, _, err := p.PubNub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

// StaffDirectory is the part of the store the notifier needs.
type StaffDirectory interface {
	ListStaff(ctx context.Context, productionID string, roles []string) ([]models.StaffMember, error)
	AddNotifications(ctx context.Context, notes []models.Notification) error
}

// NotificationService tells a production's staff about each check-in.
type NotificationService struct {
	staff     StaffDirectory
	publisher Publisher
	now       func() time.Time
}

func NewNotificationService(staff StaffDirectory, publisher Publisher) *NotificationService {
	return &NotificationService{
		staff:     staff,
		publisher: publisher,
		now:       time.Now,
	}
}

// NotifyCheckIn sends one notification per staff member. Every recipient is
// attempted; the returned error joins whatever failed.
func (s *NotificationService) NotifyCheckIn(ctx context.Context, rec models.AttendanceRecord) error {
	staff, err := s.staff.ListStaff(ctx, rec.ProductionID, models.StaffRoles)
	if err != nil {
		monitoring.TrackNotification("lookup_failed")
		return fmt.Errorf("list staff for %s: %w", rec.ProductionID, err)
	}

	recipients := uniqueRecipients(staff)
	if len(recipients) == 0 {
		slog.Info("No staff to notify", "production_id", rec.ProductionID, "session_id", rec.SessionID)
		return nil
	}

	message := checkin.Message(rec)
	data := map[string]any{
		"attendance_id": rec.ID,
		"session_id":    rec.SessionID,
		"user_id":       rec.UserID,
	}
	createdAt := s.now()

	notes := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notes = append(notes, models.Notification{
			UserID:    userID,
			Title:     NotificationTitle,
			Message:   message,
			Type:      NotificationType,
			CreatedAt: createdAt,
			Data:      data,
		})
	}

	var errs []error
	if err := s.staff.AddNotifications(ctx, notes); err != nil {
		slog.Error("Failed to store notifications", "session_id", rec.SessionID, "error", err)
		errs = append(errs, err)
	}

	for _, n := range notes {
		err := s.publisher.Publish(ctx, UserChannel(n.UserID), map[string]any{
			"type":    n.Type,
			"title":   n.Title,
			"message": n.Message,
			"data":    n.Data,
		})
		if err != nil {
			monitoring.TrackNotification("failed")
			slog.Warn("Failed to publish notification", "recipient", n.UserID, "error", err)
			errs = append(errs, err)
			continue
		}
		monitoring.TrackNotification("sent")
	}

	return errors.Join(errs...)
}

// uniqueRecipients keeps the first occurrence of each user, since one person
// can hold several staff roles.
func uniqueRecipients(staff []models.StaffMember) []string {
	seen := make(map[string]bool, len(staff))
	out := make([]string, 0, len(staff))
	for _, m := range staff {
		if m.UserID == "" || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		out = append(out, m.UserID)
	}
	return out
}

// PubNubSink pushes view state to the participant's own channel.
type PubNubSink struct {
	publisher Publisher
}

func NewPubNubSink(publisher Publisher) *PubNubSink {
	return &PubNubSink{publisher: publisher}
}

func (s *PubNubSink) PublishEligibility(ctx context.Context, userID string, snap checkin.Snapshot) error {
	return s.publisher.Publish(ctx, UserChannel(userID), map[string]any{
		"type":  "eligibility",
		"state": snap,
	})
}

func (s *PubNubSink) PublishCheckIn(ctx context.Context, userID string, phase checkin.Phase, rec *models.AttendanceRecord) error {
	msg := map[string]any{
		"type":  "check_in",
		"phase": phase,
	}
	if rec != nil {
		msg["record"] = rec
	}
	return s.publisher.Publish(ctx, UserChannel(userID), msg)
}
