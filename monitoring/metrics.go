package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_attempts_total",
			Help: "Check-in submissions by outcome",
		},
		[]string{"outcome"},
	)

	lateCheckIns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_late_total",
			Help: "Check-ins recorded after the late threshold",
		},
	)

	positionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_position_updates_total",
			Help: "Position readings received from devices",
		},
		[]string{"accepted"},
	)

	sensingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_sensing_errors_total",
			Help: "Location sensing errors reported by devices",
		},
		[]string{"kind"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_notifications_total",
			Help: "Staff notifications by delivery outcome",
		},
		[]string{"outcome"},
	)

	checkInDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkin_distance_meters",
			Help:    "Distance from the venue center at check-in",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	openViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkin_open_views",
			Help: "Check-in views currently open",
		},
	)
)

// TrackCheckIn counts a submission: "success", "duplicate", "not_eligible",
// "no_session", "busy" or "store_error".
func TrackCheckIn(outcome string) {
	checkIns.WithLabelValues(outcome).Inc()
}

func TrackLateCheckIn() {
	lateCheckIns.Inc()
}

func TrackPositionUpdate(accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	positionUpdates.WithLabelValues(label).Inc()
}

func TrackSensingError(kind string) {
	sensingErrors.WithLabelValues(kind).Inc()
}

func TrackNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

func ObserveCheckInDistance(meters float64) {
	checkInDistance.Observe(meters)
}

func SetOpenViews(n int) {
	openViews.Set(float64(n))
}
