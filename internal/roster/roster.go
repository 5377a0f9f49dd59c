// Package roster joins a production's cast with the attendance taken for a
// session into the list staff see.
package roster

import (
	"fmt"
	"sort"
	"time"

	"checkin-system/internal/window"
	"checkin-system/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Summary holds the headline counts shown above the roster.
type Summary struct {
	CheckedIn int `json:"checked_in"`
	Late      int `json:"late"`
	Total     int `json:"total"`
	Missing   int `json:"missing"`
}

// Build left-joins cast with records by user ID. Checked-in entries come
// first; each group is ordered by name using a case-insensitive collator for
// tag. The result is never nil.
func Build(cast []models.CastMember, records []models.AttendanceRecord, tag language.Tag) []models.RosterEntry {
	byUser := make(map[string]models.AttendanceRecord, len(records))
	for _, rec := range records {
		byUser[rec.UserID] = rec
	}

	entries := make([]models.RosterEntry, 0, len(cast))
	for _, member := range cast {
		entry := models.RosterEntry{
			UserID:    member.UserID,
			Name:      member.DisplayName,
			RoleLabel: roleLabel(member),
			Status:    models.AttendanceAbsent,
		}
		// any record counts as checked in; Status carries what staff recorded
		if rec, ok := byUser[member.UserID]; ok {
			at := rec.CheckInTime
			entry.CheckedIn = true
			entry.Late = rec.IsLate
			entry.CheckInTime = &at
			entry.Status = rec.Status
			if entry.Status == "" {
				entry.Status = models.AttendancePresent
			}
		}
		entries = append(entries, entry)
	}

	// collators keep internal buffers, so each call gets its own
	col := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.CheckedIn != b.CheckedIn {
			return a.CheckedIn
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.UserID < b.UserID
	})

	return entries
}

func roleLabel(m models.CastMember) string {
	if m.Character != "" {
		return m.Character
	}
	return "Cast Member"
}

func Summarize(entries []models.RosterEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		if e.CheckedIn {
			s.CheckedIn++
		}
		if e.Late {
			s.Late++
		}
	}
	s.Missing = s.Total - s.CheckedIn
	return s
}

// Split returns the checked-in and missing entries, keeping order.
func Split(entries []models.RosterEntry) (checkedIn, missing []models.RosterEntry) {
	checkedIn = []models.RosterEntry{}
	missing = []models.RosterEntry{}
	for _, e := range entries {
		if e.CheckedIn {
			checkedIn = append(checkedIn, e)
		} else {
			missing = append(missing, e)
		}
	}
	return checkedIn, missing
}

// StatusLine is the per-entry status text, with times in loc.
func StatusLine(e models.RosterEntry, loc *time.Location) string {
	if !e.CheckedIn || e.CheckInTime == nil {
		return "Not checked in"
	}
	line := "Checked in at " + e.CheckInTime.In(loc).Format("15:04")
	if e.Late {
		line += " (late)"
	}
	return line
}

// StartLabel describes the session start relative to now.
func StartLabel(now, start time.Time) string {
	clock := start.In(now.Location()).Format("15:04")
	diff := window.DiffMinutes(now, start)
	switch {
	case diff > 0:
		return fmt.Sprintf("%s (%d minutes from now)", clock, diff)
	case diff > -60:
		return fmt.Sprintf("%s (Started %d minutes ago)", clock, -diff)
	default:
		return fmt.Sprintf("%s (In progress)", clock)
	}
}
