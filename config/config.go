package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"checkin-system/models"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Venue
	VenueName      string
	VenueLatitude  float64
	VenueLongitude float64
	VenueRadius    float64
	VenueTimezone  string

	// Check-in window, in minutes relative to session start
	EarlyCheckInMinutes  int
	LateThresholdMinutes int
	HardCloseMinutes     int

	// Location and view timing
	LocationRetryDelay time.Duration
	EligibilityTick    time.Duration
	CheckInLockTTL     time.Duration

	// Cleanup configuration
	CleanupInterval time.Duration
	ViewIdleTTL     time.Duration

	// Position updates allowed per user per minute
	PositionRateLimit int

	RosterLocale string

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads a local .env when present, then the environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to read .env: %v", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "checkin-server"),

		// Venue
		VenueName:      getEnv("VENUE_NAME", "Main Theatre"),
		VenueLatitude:  getEnvAsFloat("VENUE_LATITUDE", 40.7128),
		VenueLongitude: getEnvAsFloat("VENUE_LONGITUDE", -74.0060),
		VenueRadius:    getEnvAsFloat("VENUE_RADIUS_METERS", 100),
		VenueTimezone:  getEnv("VENUE_TIMEZONE", "Local"),

		// Window
		EarlyCheckInMinutes:  getEnvAsInt("EARLY_CHECKIN_MINUTES", 60),
		LateThresholdMinutes: getEnvAsInt("LATE_THRESHOLD_MINUTES", 15),
		HardCloseMinutes:     getEnvAsInt("HARD_CLOSE_MINUTES", 180),

		// Timing
		LocationRetryDelay: getEnvAsDuration("LOCATION_RETRY_DELAY", "5s"),
		EligibilityTick:    getEnvAsDuration("ELIGIBILITY_TICK", "30s"),
		CheckInLockTTL:     getEnvAsDuration("CHECKIN_LOCK_TTL", "10s"),

		// Cleanup
		CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", "5m"),
		ViewIdleTTL:     getEnvAsDuration("VIEW_IDLE_TTL", "30m"),

		PositionRateLimit: getEnvAsInt("POSITION_RATE_LIMIT", 60),
		RosterLocale:      getEnv("ROSTER_LOCALE", "en"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func (c *Config) Venue() models.Venue {
	return models.Venue{
		Name:         c.VenueName,
		Latitude:     c.VenueLatitude,
		Longitude:    c.VenueLongitude,
		RadiusMeters: c.VenueRadius,
	}
}

func (c *Config) Window() models.CheckInWindow {
	return models.CheckInWindow{
		EarlyOpenMinutes:     c.EarlyCheckInMinutes,
		LateThresholdMinutes: c.LateThresholdMinutes,
		HardCloseMinutes:     c.HardCloseMinutes,
	}
}

// Location is the venue's time zone, used for "today" and displayed times.
// An unknown zone falls back to the server's.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.VenueTimezone)
	if err != nil {
		log.Printf("Unknown VENUE_TIMEZONE %q, using local time: %v", c.VenueTimezone, err)
		return time.Local
	}
	return loc
}

func (c *Config) Locale() language.Tag {
	tag, err := language.Parse(c.RosterLocale)
	if err != nil {
		return language.English
	}
	return tag
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
