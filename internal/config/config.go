/**
 * @description
 * This package handles the configuration management for the portal service. It uses
 * the Viper library to read configuration from environment variables and an optional
 * .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Flow state backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all the configuration variables for the portal service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	IPAPAPIBaseURL           string `mapstructure:"IPAP_API_BASE_URL"`
	IPAPAPIKey               string `mapstructure:"IPAP_API_KEY"`
	IPAPAPITimeoutSeconds    int    `mapstructure:"IPAP_API_TIMEOUT_SECONDS"`
	PDFRendererURL           string `mapstructure:"PDF_RENDERER_URL"`
	PortalBaseURL            string `mapstructure:"PORTAL_BASE_URL"`
	SessionSecret            string `mapstructure:"SESSION_SECRET"`
	SessionCookieName        string `mapstructure:"SESSION_COOKIE_NAME"`
	SessionTTLMinutes        int    `mapstructure:"SESSION_TTL_MINUTES"`
	FlowStateTTLMinutes      int    `mapstructure:"FLOW_STATE_TTL_MINUTES"`
	FlowStateBackend         string `mapstructure:"FLOW_STATE_BACKEND"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix           string `mapstructure:"REDIS_KEY_PREFIX"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	EventsExchange           string `mapstructure:"EVENTS_EXCHANGE"`
	AllowedOrigins           string `mapstructure:"ALLOWED_ORIGINS"`
	OTPLength                int    `mapstructure:"OTP_LENGTH"`
	OTPResendCooldownSeconds int    `mapstructure:"OTP_RESEND_COOLDOWN_SECONDS"`
	VerifyRateLimitPerMinute int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	OTPRateLimitPerMinute    int    `mapstructure:"OTP_RATE_LIMIT_PER_MINUTE"`
	SessionSweepSchedule     string `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	SessionIdleMinutes       int    `mapstructure:"SESSION_IDLE_MINUTES"`
}

// LoadConfig reads configuration from environment variables and an optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("IPAP_API_TIMEOUT_SECONDS", 30)
	viper.SetDefault("PORTAL_BASE_URL", "http://localhost:3000")
	viper.SetDefault("SESSION_COOKIE_NAME", "ipap_session")
	viper.SetDefault("SESSION_TTL_MINUTES", 480)
	viper.SetDefault("FLOW_STATE_TTL_MINUTES", 120)
	viper.SetDefault("FLOW_STATE_BACKEND", BackendRedis)
	viper.SetDefault("REDIS_KEY_PREFIX", "ipap:portal")
	viper.SetDefault("EVENTS_EXCHANGE", "ipap.portal.events")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("OTP_LENGTH", 6)
	viper.SetDefault("OTP_RESEND_COOLDOWN_SECONDS", 60)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("OTP_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 5m")
	viper.SetDefault("SESSION_IDLE_MINUTES", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("IPAP_API_BASE_URL", "IPAP_API_BASE_URL", "NEXT_PUBLIC_API_URL")
	_ = viper.BindEnv("IPAP_API_KEY")
	_ = viper.BindEnv("IPAP_API_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PDF_RENDERER_URL")
	_ = viper.BindEnv("PORTAL_BASE_URL")
	_ = viper.BindEnv("SESSION_SECRET")
	_ = viper.BindEnv("SESSION_COOKIE_NAME")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("FLOW_STATE_TTL_MINUTES")
	_ = viper.BindEnv("FLOW_STATE_BACKEND")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("OTP_LENGTH")
	_ = viper.BindEnv("OTP_RESEND_COOLDOWN_SECONDS")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("OTP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("SESSION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("SESSION_IDLE_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.IPAPAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.IPAPAPIBaseURL), "/")
	config.PortalBaseURL = strings.TrimRight(strings.TrimSpace(config.PortalBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "ipap:portal"
	}
	if strings.TrimSpace(config.SessionCookieName) == "" {
		config.SessionCookieName = "ipap_session"
	}

	config.FlowStateBackend = strings.ToLower(strings.TrimSpace(config.FlowStateBackend))
	switch config.FlowStateBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		log.Printf("level=warn component=config msg=\"unknown flow state backend; using redis\" value=%q", config.FlowStateBackend)
		config.FlowStateBackend = BackendRedis
	}

	if config.IPAPAPITimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid upstream timeout; using default\" value=%d", config.IPAPAPITimeoutSeconds)
		config.IPAPAPITimeoutSeconds = 30
	}
	if config.SessionTTLMinutes <= 0 {
		config.SessionTTLMinutes = 480
	}
	if config.FlowStateTTLMinutes <= 0 {
		config.FlowStateTTLMinutes = 120
	}
	if config.OTPLength <= 0 || config.OTPLength > 12 {
		log.Printf("level=warn component=config msg=\"invalid otp length; using default\" value=%d", config.OTPLength)
		config.OTPLength = 6
	}
	if config.OTPResendCooldownSeconds <= 0 {
		config.OTPResendCooldownSeconds = 60
	}
	if config.VerifyRateLimitPerMinute <= 0 {
		config.VerifyRateLimitPerMinute = 10
	}
	if config.OTPRateLimitPerMinute <= 0 {
		config.OTPRateLimitPerMinute = 5
	}
	if strings.TrimSpace(config.SessionSweepSchedule) == "" {
		config.SessionSweepSchedule = "@every 5m"
	}
	if config.SessionIdleMinutes <= 0 {
		config.SessionIdleMinutes = 30
	}

	return
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var problems []string
	if c.IPAPAPIBaseURL == "" {
		problems = append(problems, "IPAP_API_BASE_URL is required")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		problems = append(problems, "SESSION_SECRET is required")
	}
	if c.FlowStateBackend == BackendPostgres && c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required for the postgres flow state backend")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// AllowedOriginList splits ALLOWED_ORIGINS.
func (c Config) AllowedOriginList() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c Config) IPAPAPITimeout() time.Duration {
	return time.Duration(c.IPAPAPITimeoutSeconds) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c Config) FlowStateTTL() time.Duration {
	return time.Duration(c.FlowStateTTLMinutes) * time.Minute
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}
