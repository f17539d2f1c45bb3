package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	FCMProjectID   string `mapstructure:"FCM_PROJECT_ID"`
	FCMCredentials string `mapstructure:"FCM_CREDENTIALS"`

	ScanInterval      time.Duration `mapstructure:"SCAN_INTERVAL"`
	NotifyLeadMinutes int           `mapstructure:"NOTIFY_LEAD_MINUTES"`
	SnoozeMinutes     int           `mapstructure:"SNOOZE_MINUTES"`
	SnoozeLimit       int           `mapstructure:"SNOOZE_LIMIT"`
	MissedAfter       time.Duration `mapstructure:"MISSED_AFTER"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SCAN_INTERVAL", "1m")
	v.SetDefault("NOTIFY_LEAD_MINUTES", 5)
	v.SetDefault("SNOOZE_MINUTES", 15)
	v.SetDefault("SNOOZE_LIMIT", 3)
	v.SetDefault("MISSED_AFTER", "2h")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("FCM_PROJECT_ID")
	v.BindEnv("FCM_CREDENTIALS")
	v.BindEnv("SCAN_INTERVAL")
	v.BindEnv("NOTIFY_LEAD_MINUTES")
	v.BindEnv("SNOOZE_MINUTES")
	v.BindEnv("SNOOZE_LIMIT")
	v.BindEnv("MISSED_AFTER")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory, and the reminder engine's timing knobs must be
// positive so the scanner cannot spin or generate notify times after the
// intake time.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is not development")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	if c.NotifyLeadMinutes < 0 {
		return fmt.Errorf("NOTIFY_LEAD_MINUTES must not be negative, got %d", c.NotifyLeadMinutes)
	}
	if c.SnoozeMinutes <= 0 {
		return fmt.Errorf("SNOOZE_MINUTES must be positive, got %d", c.SnoozeMinutes)
	}
	if c.SnoozeLimit < 0 {
		return fmt.Errorf("SNOOZE_LIMIT must not be negative, got %d", c.SnoozeLimit)
	}
	if c.MissedAfter <= 0 {
		return fmt.Errorf("MISSED_AFTER must be positive, got %s", c.MissedAfter)
	}
	return nil
}
