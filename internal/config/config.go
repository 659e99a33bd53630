package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "jwt-secret", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// JWTSecret signs every access token. Changing it invalidates all
	// outstanding access tokens at once.
	JWTSecret              string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer              string `env:"JWT_ISSUER" envDefault:"partner-server"`
	AccessTTLSeconds       int    `env:"JWT_ACCESS_TTL_SECONDS" envDefault:"3600"`
	RefreshTTLSeconds      int    `env:"REFRESH_TTL_SECONDS" envDefault:"1209600"`
	RefreshAbsoluteTTLSecs int    `env:"REFRESH_ABSOLUTE_TTL_SECONDS" envDefault:"2592000"`
	LoginMaxAttempts       int    `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockMinutes       int    `env:"LOGIN_LOCK_MINUTES" envDefault:"30"`
	AuthRateLimitPerMin    int    `env:"AUTH_RATE_LIMIT_PER_MIN" envDefault:"20"`
	AuditQueueSize         int    `env:"AUDIT_QUEUE_SIZE" envDefault:"1024"`
	UploadDir              string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	UploadBaseURL          string `env:"UPLOAD_BASE_URL" envDefault:"/files"`
	UploadBucket           string `env:"UPLOAD_BUCKET" envDefault:"partner-documents"`
	MaxUploadBytes         int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`

	// TrustedProxies lists addresses or CIDRs whose forwarding headers are
	// believed. Empty means every caller is keyed by its socket address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

func (c *Config) RefreshAbsoluteTTL() time.Duration {
	return time.Duration(c.RefreshAbsoluteTTLSecs) * time.Second
}

func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LoginLockMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AccessTTLSeconds <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL_SECONDS must be positive")
	}
	if c.RefreshTTLSeconds <= 0 || c.RefreshAbsoluteTTLSecs <= 0 {
		return fmt.Errorf("REFRESH_TTL_SECONDS and REFRESH_ABSOLUTE_TTL_SECONDS must be positive")
	}
	if c.RefreshTTLSeconds > c.RefreshAbsoluteTTLSecs {
		return fmt.Errorf("REFRESH_TTL_SECONDS must not exceed REFRESH_ABSOLUTE_TTL_SECONDS")
	}
	if c.LoginMaxAttempts <= 0 || c.LoginLockMinutes <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS and LOGIN_LOCK_MINUTES must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
