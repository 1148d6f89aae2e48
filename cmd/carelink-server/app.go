package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/calendar"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/internal/platform/metrics"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/websocket"
)

// app holds the wired services. It is built once per process and shared by
// the serve and seed commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger zerolog.Logger
	policy calendar.Policy
	now    func() time.Time

	directory    *directory.Service
	identity     *identity.Service
	appointments *appointment.Service
	notifier     *notification.Manager
	hub          *websocket.Hub
	publisher    events.Publisher
	metrics      *metrics.Collector
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	policy, err := cfg.CalendarPolicy()
	if err != nil {
		return nil, err
	}
	initial, err := appointment.ParseStatus(cfg.BookingInitialStatus)
	if err != nil || !appointment.ValidInitialStatus(initial) {
		return nil, fmt.Errorf("BOOKING_INITIAL_STATUS %q is not a valid initial status", cfg.BookingInitialStatus)
	}

	a := &app{
		cfg:     cfg,
		pool:    pool,
		logger:  logger,
		policy:  policy,
		now:     time.Now,
		hub:     websocket.NewHub(logger),
		metrics: metrics.NewCollector("carelink"),
	}

	a.publisher = events.NopPublisher{Logger: logger}
	if amqpCfg, ok := cfg.AMQP(); ok {
		p, err := events.DialAMQP(amqpCfg, logger)
		if err != nil {
			// Bookings keep working without the broker.
			logger.Error().Err(err).Msg("amqp unavailable, events will not be published")
		} else {
			a.publisher = p
		}
	}

	var notifyOpts []notification.Option
	if cfg.EmailNotifications {
		notifyOpts = append(notifyOpts, notification.WithEmail(notification.LogEmailSender{Logger: logger}))
	}
	a.notifier = notification.NewManager(notification.NewTemplateEngine(), a.hub, logger, notifyOpts...)

	a.directory = directory.NewService(directory.NewRepoPG(pool), policy,
		directory.WithCache(cfg.DoctorCacheSize, cfg.DoctorCacheTTL))

	patients := identity.NewPatientRepoPG(pool)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL)
	a.identity = identity.NewService(patients, identity.NewAccountRepoPG(pool), a.directory,
		db.NewTransactor(pool), tokens, logger)

	a.appointments = appointment.NewService(appointment.NewRepoPG(pool), a.directory, patients, policy,
		appointment.WithNotifier(a.notifier),
		appointment.WithPublisher(a.publisher),
		appointment.WithMetrics(a.metrics),
		appointment.WithLogger(logger),
		appointment.WithInitialStatus(initial),
	)

	// The services below need appointment data; appointment itself depends on
	// them, so the back references are set after construction.
	a.identity.SetCareRelation(a.appointments)
	a.directory.SetAvailabilityChecker(a.appointments)

	return a, nil
}

func (a *app) close(_ context.Context) {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing event publisher")
	}
}

func (a *app) authMiddleware() echo.MiddlewareFunc {
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     a.cfg.JWTIssuer,
		SigningKey: []byte(a.cfg.JWTSecret),
	})
	if a.cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

// newEcho builds the HTTP server with every route mounted.
func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: a.cfg.IsProduction()}))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader,
			auth.DevUserHeader, auth.DevRoleHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	authMW := a.authMiddleware()
	rl := middleware.RateLimit(a.cfg.RateLimit())

	public := e.Group("/api/v1", rl)
	api := e.Group("/api/v1", authMW, rl)

	directory.NewHandler(a.directory).RegisterRoutes(public, api)
	identity.NewHandler(a.identity).RegisterRoutes(public, api)
	appointment.NewHandler(a.appointments).RegisterRoutes(api)
	calendar.NewHandler(a.policy, a.appointments, a.now).RegisterRoutes(public)
	notification.NewHandler(a.notifier).RegisterRoutes(api)
	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(e.Group("", authMW))

	return e
}
