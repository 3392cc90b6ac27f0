package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the admin API. It is loaded
// once at startup and never mutated afterwards.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	JWTSecret          string
	IdentityBaseURL    string
	IdentityServiceKey string
	MailerBaseURL      string
	MailerAPIKey       string
	MailerFrom         string
	OTPTemplateID      string
	OTPSubject         string
	PrintWorkerToken   string
	PrintSubjectBase   string
	CORSAllowOrigins   string
	PrintPollInterval  time.Duration
	PrintWatchTimeout  time.Duration
	PrivilegeCacheTTL  time.Duration
	TempPasswordLength int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VERKSTED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Verksted Admin API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("otp.subject", "Midlertidig passord til medlemskontoen din")
	v.SetDefault("print.subject_base", "verksted.print.jobs")
	v.SetDefault("print.poll_interval", "3s")
	v.SetDefault("print.watch_timeout", "30s")
	v.SetDefault("privilege.cache_ttl", "30s")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("temp_password_length", 18)

	pollInterval, err := parseDurationSetting(v, "print.poll_interval", 3*time.Second)
	if err != nil {
		return Config{}, err
	}

	watchTimeout, err := parseDurationSetting(v, "print.watch_timeout", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDurationSetting(v, "privilege.cache_ttl", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		IdentityBaseURL:    v.GetString("identity.base_url"),
		IdentityServiceKey: v.GetString("identity.service_key"),
		MailerBaseURL:      v.GetString("mailer.base_url"),
		MailerAPIKey:       v.GetString("mailer.api_key"),
		MailerFrom:         v.GetString("mailer.from"),
		OTPTemplateID:      v.GetString("otp.template_id"),
		OTPSubject:         v.GetString("otp.subject"),
		PrintWorkerToken:   v.GetString("print.worker_token"),
		PrintSubjectBase:   v.GetString("print.subject_base"),
		CORSAllowOrigins:   v.GetString("cors.allow_origins"),
		PrintPollInterval:  pollInterval,
		PrintWatchTimeout:  watchTimeout,
		PrivilegeCacheTTL:  cacheTTL,
		TempPasswordLength: v.GetInt("temp_password_length"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.IdentityBaseURL == "" || cfg.IdentityServiceKey == "" {
		return Config{}, fmt.Errorf("identity provider url and service key must be provided")
	}

	if cfg.PrintWorkerToken == "" {
		return Config{}, fmt.Errorf("print worker token must be provided")
	}

	if cfg.TempPasswordLength < 8 {
		cfg.TempPasswordLength = 18
	}

	return cfg, nil
}

func parseDurationSetting(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return value, nil
}
