package cmd

import (
	"fmt"
	"strings"
	"time"

	"checkin-system/config"
	"checkin-system/internal/eligibility"
	"checkin-system/internal/geo"
	"checkin-system/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")).Bold(true)
	denyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// newSimulateCmd evaluates the eligibility gate for a hypothetical position
// and time without touching the database.
func newSimulateCmd(cfg *config.Config) *cobra.Command {
	var (
		lat, lon, accuracy float64
		at, start          string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Check whether a position and time would be allowed to check in",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := cfg.Location()
			now := time.Now().In(loc)
			if at != "" {
				t, err := parseClock(at, now, loc)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}

			session := &models.Session{ID: "simulated"}
			if start != "" {
				t, err := parseClock(start, now, loc)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				session.StartTime = t
			} else {
				session.StartTime = now.Add(30 * time.Minute)
			}

			gate := eligibility.NewGate(cfg.Venue(), cfg.Window())
			state := gate.Recompute(eligibility.Inputs{
				Now:      now,
				Session:  session,
				Position: &models.Position{Latitude: lat, Longitude: lon, AccuracyMeters: accuracy, ObservedAt: now},
			})

			fmt.Fprintln(cmd.OutOrStdout(), renderSimulation(state, gate.Venue(), now, session.StartTime))
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", cfg.VenueLatitude, "latitude of the device")
	cmd.Flags().Float64Var(&lon, "lon", cfg.VenueLongitude, "longitude of the device")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 10, "reported accuracy in meters")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time, RFC3339 or HH:MM today (default now)")
	cmd.Flags().StringVar(&start, "start", "", "session start, RFC3339 or HH:MM today (default 30 minutes after --at)")

	return cmd
}

func parseClock(value string, ref time.Time, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("15:04", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := ref.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

func renderSimulation(state eligibility.State, venue models.Venue, now, start time.Time) string {
	verdict := denyStyle.Render("CANNOT CHECK IN")
	if state.CanCheckIn {
		verdict = okStyle.Render("CAN CHECK IN")
	}

	distance := "unknown"
	if state.LocationKnown {
		distance = geo.RoundMeters(state.DistanceMeters) + " m"
	}

	rows := []struct{ label, value string }{
		{"Venue", fmt.Sprintf("%s (%s m radius)", venue.Name, geo.RoundMeters(venue.RadiusMeters))},
		{"Time", now.Format("15:04")},
		{"Start", start.Format("15:04")},
		{"Window", string(state.Window)},
		{"Distance", distance},
		{"Location", state.LocationMessage},
		{"Status", state.Message},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Rehearsal check-in") + "\n\n")
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r.label) + r.value + "\n")
	}
	b.WriteString("\n" + verdict)
	if state.CanCheckIn && state.LateIfNow {
		b.WriteString(" (late)")
	}

	return boxStyle.Render(b.String())
}
