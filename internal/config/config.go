package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/carelink/carelink/internal/platform/calendar"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/tracing"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	ClinicTimezone  string        `mapstructure:"CLINIC_TIMEZONE"`
	SlotGridStart   string        `mapstructure:"SLOT_GRID_START"`
	SlotGridEnd     string        `mapstructure:"SLOT_GRID_END"`
	SlotInterval    time.Duration `mapstructure:"SLOT_INTERVAL"`
	BlockedWeekdays []string      `mapstructure:"BLOCKED_WEEKDAYS"`
	CalendarFile    string        `mapstructure:"CALENDAR_FILE"`

	BookingInitialStatus string        `mapstructure:"BOOKING_INITIAL_STATUS"`
	DoctorCacheSize      int           `mapstructure:"DOCTOR_CACHE_SIZE"`
	DoctorCacheTTL       time.Duration `mapstructure:"DOCTOR_CACHE_TTL"`

	AMQPURL            string `mapstructure:"AMQP_URL"`
	AMQPExchange       string `mapstructure:"AMQP_EXCHANGE"`
	EmailNotifications bool   `mapstructure:"EMAIL_NOTIFICATIONS"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL",
	"CLINIC_TIMEZONE", "SLOT_GRID_START", "SLOT_GRID_END", "SLOT_INTERVAL", "BLOCKED_WEEKDAYS", "CALENDAR_FILE",
	"BOOKING_INITIAL_STATUS", "DOCTOR_CACHE_SIZE", "DOCTOR_CACHE_TTL",
	"AMQP_URL", "AMQP_EXCHANGE", "EMAIL_NOTIFICATIONS",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("JWT_ISSUER", "carelink")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CLINIC_TIMEZONE", "Africa/Algiers")
	v.SetDefault("SLOT_GRID_START", "08:00")
	v.SetDefault("SLOT_GRID_END", "15:30")
	v.SetDefault("SLOT_INTERVAL", "30m")
	v.SetDefault("BLOCKED_WEEKDAYS", "friday,saturday")
	v.SetDefault("BOOKING_INITIAL_STATUS", "PENDING")
	v.SetDefault("DOCTOR_CACHE_SIZE", 512)
	v.SetDefault("DOCTOR_CACHE_TTL", "5m")
	v.SetDefault("AMQP_EXCHANGE", "carelink.appointments")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive from the environment as one string.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.BlockedWeekdays = splitList(v.GetString("BLOCKED_WEEKDAYS"))
	cfg.BookingInitialStatus = strings.ToUpper(strings.TrimSpace(cfg.BookingInitialStatus))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in development mode: requests may pick their identity with X-Dev-User-ID and X-Dev-Role")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	switch c.BookingInitialStatus {
	case "PENDING", "SCHEDULED":
	default:
		return fmt.Errorf("BOOKING_INITIAL_STATUS must be PENDING or SCHEDULED, got %q", c.BookingInitialStatus)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when TRACING_ENABLED is true")
	}
	if _, err := c.CalendarPolicy(); err != nil {
		return err
	}
	return nil
}

// CalendarPolicy builds the slot policy from the grid settings, applying
// CALENDAR_FILE when one is set.
func (c *Config) CalendarPolicy() (calendar.Policy, error) {
	p, err := calendar.Load(calendar.Settings{
		Timezone:        c.ClinicTimezone,
		GridStart:       c.SlotGridStart,
		GridEnd:         c.SlotGridEnd,
		Interval:        c.SlotInterval,
		BlockedWeekdays: c.BlockedWeekdays,
		File:            c.CalendarFile,
	})
	if err != nil {
		return calendar.Policy{}, fmt.Errorf("calendar: %w", err)
	}
	return p, nil
}

func (c *Config) RateLimit() middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = c.RateLimitRPS
	rl.BurstSize = c.RateLimitBurst
	return rl
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:     c.TracingEnabled,
		Endpoint:    c.OTLPEndpoint,
		ServiceName: "carelink",
		SampleRate:  c.TraceSampleRate,
	}
}

// AMQP returns the broker settings. ok is false when no broker is configured.
func (c *Config) AMQP() (cfg events.AMQPConfig, ok bool) {
	if c.AMQPURL == "" {
		return events.AMQPConfig{}, false
	}
	return events.AMQPConfig{
		URL:         c.AMQPURL,
		Exchange:    c.AMQPExchange,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}, true
}
