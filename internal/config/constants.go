package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Upper bound for a single cleanup pass
const CleanupJobTimeout = 30 * time.Second

// Access tokens issued to partners carry this role.
const PartnerRole = "FITNESS_PARTNER"

// Rate limit window for the unauthenticated auth endpoints
const AuthRateLimitWindow = time.Minute
