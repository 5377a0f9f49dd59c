package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin-system/config"
	"checkin-system/internal/eligibility"
	"checkin-system/internal/handlers"
	"checkin-system/internal/services"
	"checkin-system/internal/store"
	"checkin-system/security"
	"checkin-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	loc := cfg.Location()

	app.RootCmd.AddCommand(newSimulateCmd(cfg))

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = cfg.PubNubUserID

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	st := store.New(app, loc)
	publisher := services.NewPubNubPublisher(pn)
	notificationService := services.NewNotificationService(st, publisher)
	registry := services.NewViewRegistry(services.RegistryConfig{
		Gate:            eligibility.NewGate(cfg.Venue(), cfg.Window()),
		Sessions:        st,
		Store:           st,
		Locker:          services.NewCheckInLock(redisClient, cfg.CheckInLockTTL),
		Notifier:        notificationService,
		Sink:            services.NewPubNubSink(publisher),
		Tick:            cfg.EligibilityTick,
		RetryDelay:      cfg.LocationRetryDelay,
		IdleTTL:         cfg.ViewIdleTTL,
		CleanupInterval: cfg.CleanupInterval,
	})
	rosterService := services.NewRosterService(st, cfg.Locale(), loc)
	limiter := security.NewRateLimiter(redisClient, cfg.PositionRateLimit, time.Minute)

	// Initialize handlers
	checkInHandler := handlers.NewCheckInHandler(registry, rosterService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go registry.CleanupInactiveViews(ctx)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	setupSessionHooks(app, registry)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Check-in endpoints
		checkin := e.Router.Group("/api/v1/checkin")
		checkin.Bind(apis.RequireAuth())
		checkin.BindFunc(limiter.AntiBot)
		checkin.POST("", checkInHandler.SubmitCheckIn)
		checkin.POST("/view", checkInHandler.OpenView)
		checkin.DELETE("/view", checkInHandler.CloseView)
		checkin.GET("/state", checkInHandler.GetState)
		checkin.POST("/permission", checkInHandler.SetPermission)
		checkin.POST("/position", checkInHandler.ReportPosition).BindFunc(limiter.Limit("position"))
		checkin.POST("/position-error", checkInHandler.ReportPositionError).BindFunc(limiter.Limit("position"))

		// Staff endpoints
		e.Router.GET("/api/v1/attendance/roster", checkInHandler.GetRoster).Bind(apis.RequireAuth())

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupSessionHooks keeps open views in step with edits to the schedule.
func setupSessionHooks(app *pocketbase.PocketBase, registry *services.ViewRegistry) {
	refresh := func(hook, sessionID string) {
		slog.Info("Session changed, refreshing check-in views",
			"sessionID", sessionID,
			"hook", hook,
			"views", registry.Len(),
		)
		go registry.RefreshAll(context.Background())
	}

	app.OnRecordAfterCreateSuccess(store.CollectionSessions).BindFunc(func(e *core.RecordEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		refresh("OnRecordAfterCreateSuccess", e.Record.Id)
		return nil
	})

	app.OnRecordAfterUpdateSuccess(store.CollectionSessions).BindFunc(func(e *core.RecordEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		refresh("OnRecordAfterUpdateSuccess", e.Record.Id)
		return nil
	})

	app.OnRecordAfterDeleteSuccess(store.CollectionSessions).BindFunc(func(e *core.RecordEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		refresh("OnRecordAfterDeleteSuccess", e.Record.Id)
		return nil
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
