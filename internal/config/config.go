package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant     string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret         string   `mapstructure:"JWT_SECRET"`
	CronSecret        string   `mapstructure:"CRON_SECRET"`
	CronTrustedHeader string   `mapstructure:"CRON_TRUSTED_HEADER"`
	ReminderLeadHours int      `mapstructure:"REMINDER_LEAD_HOURS"`
	SMSFromNumber     string   `mapstructure:"SMS_FROM_NUMBER"`
	EmailFromAddress  string   `mapstructure:"EMAIL_FROM_ADDRESS"`
	SendTimeoutSecs   int      `mapstructure:"SEND_TIMEOUT_SECS"`
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
	v.SetDefault("DEFAULT_TENANT", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CRON_TRUSTED_HEADER", "X-Cloud-Scheduler")
	v.SetDefault("REMINDER_LEAD_HOURS", 24)
	v.SetDefault("SEND_TIMEOUT_SECS", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CRON_SECRET")
	v.BindEnv("CRON_TRUSTED_HEADER")
	v.BindEnv("REMINDER_LEAD_HOURS")
	v.BindEnv("SMS_FROM_NUMBER")
	v.BindEnv("EMAIL_FROM_ADDRESS")
	v.BindEnv("SEND_TIMEOUT_SECS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
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
// a JWT secret must be set so staff endpoints are actually authenticated, and
// a cron secret must be set so the batch endpoints cannot be invoked by
// arbitrary callers.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required in production")
	}
	if c.ReminderLeadHours <= 0 {
		return fmt.Errorf("REMINDER_LEAD_HOURS must be positive, got %d", c.ReminderLeadHours)
	}
	if c.SendTimeoutSecs <= 0 {
		return fmt.Errorf("SEND_TIMEOUT_SECS must be positive, got %d", c.SendTimeoutSecs)
	}
	return nil
}
