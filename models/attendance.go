package models

import (
	"time"
)

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
)

const (
	RoleActor        = "actor"
	RoleStageManager = "stage_manager"
	RoleDirector     = "director"
	RoleAdmin        = "admin"
)

// StaffRoles are notified on every check-in and may view the roster.
var StaffRoles = []string{RoleStageManager, RoleDirector, RoleAdmin}

type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Character string `json:"character"`
}

func (p Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

func (p Participant) RoleLabel() string {
	if p.Character != "" {
		return p.Character
	}
	return "Cast Member"
}

func (p Participant) IsStaff() bool {
	for _, role := range StaffRoles {
		if p.Role == role {
			return true
		}
	}
	return false
}

type AttendanceRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	UserRoleLabel string    `json:"user_role"`
	SessionID     string    `json:"session_id"`
	ProductionID  string    `json:"production_id"`
	CheckInTime   time.Time `json:"check_in_time"`
	IsLate        bool      `json:"is_late"`
	Status        string    `json:"status"` // present, absent
	Notes         string    `json:"notes"`
}

type CastMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Character   string `json:"character"`
}

type StaffMember struct {
	UserID       string `json:"user_id"`
	ProductionID string `json:"production_id"`
	Role         string `json:"role"`
}

type Notification struct {
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

type RosterEntry struct {
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	RoleLabel   string     `json:"role"`
	CheckedIn   bool       `json:"checked_in"`
	Late        bool       `json:"late"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
	Status      string     `json:"status"`
}
