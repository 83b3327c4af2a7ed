package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/team-attendance/internal/application"
)

// Config captures environment driven configuration values for the attendance service.
type Config struct {
	HTTPPort         int
	SQLiteDSN        string
	SessionSecret    string
	SessionTTL       time.Duration
	TokenSecret      string
	TokenMaxLifetime time.Duration
	Lateness         application.LatenessThresholds
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields while validating required
// values. The two secrets have no defaults: running with a hardcoded signing
// key would make every deployment forge each other's tokens.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		SQLiteDSN:        "file:attendance.db?_foreign_keys=on",
		SessionTTL:       24 * time.Hour,
		TokenMaxLifetime: 4 * time.Hour,
		Lateness:         application.DefaultLatenessThresholds,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ATTENDANCE_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ATTENDANCE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("ATTENDANCE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if secret := strings.TrimSpace(os.Getenv("ATTENDANCE_SESSION_SECRET")); secret == "" {
		missing = append(missing, "ATTENDANCE_SESSION_SECRET")
	} else {
		cfg.SessionSecret = secret
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ATTENDANCE_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ATTENDANCE_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if secret := strings.TrimSpace(os.Getenv("ATTENDANCE_TOKEN_SECRET")); secret == "" {
		missing = append(missing, "ATTENDANCE_TOKEN_SECRET")
	} else {
		cfg.TokenSecret = secret
	}

	if lifetimeValue := strings.TrimSpace(os.Getenv("ATTENDANCE_TOKEN_MAX_LIFETIME")); lifetimeValue != "" {
		lifetime, err := time.ParseDuration(lifetimeValue)
		if err != nil || lifetime <= 0 {
			invalid = append(invalid, "ATTENDANCE_TOKEN_MAX_LIFETIME")
		} else {
			cfg.TokenMaxLifetime = lifetime
		}
	}

	thresholds := cfg.Lateness
	thresholdVars := []struct {
		name   string
		target *int
	}{
		{"ATTENDANCE_ON_TIME_GRACE_MINUTES", &thresholds.OnTime},
		{"ATTENDANCE_LATE_10_MINUTES", &thresholds.Late10},
		{"ATTENDANCE_LATE_30_MINUTES", &thresholds.Late30},
	}
	thresholdsValid := true
	for _, v := range thresholdVars {
		value := strings.TrimSpace(os.Getenv(v.name))
		if value == "" {
			continue
		}
		minutes, err := strconv.Atoi(value)
		if err != nil || minutes < 0 {
			invalid = append(invalid, v.name)
			thresholdsValid = false
			continue
		}
		*v.target = minutes
	}
	if thresholdsValid && (thresholds.OnTime > thresholds.Late10 || thresholds.Late10 >= thresholds.Late30) {
		invalid = append(invalid, "ATTENDANCE_ON_TIME_GRACE_MINUTES, ATTENDANCE_LATE_10_MINUTES, ATTENDANCE_LATE_30_MINUTES")
		thresholdsValid = false
	}
	if thresholdsValid {
		cfg.Lateness = thresholds
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables hold invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
