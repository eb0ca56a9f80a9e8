package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// Config holds everything the server reads from the environment.
type Config struct {
	DBURL          string
	RedisURL       string
	SessionSecret  string
	Addr           string
	AppEnv         string
	LogLevel       string
	SessionTTL     time.Duration
	Location       *time.Location
	RateLimit      int
	DebugToken     string
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []*net.IPNet
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBURL:         os.Getenv("DB_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		Addr:          getEnv("ADDR", ":8000"),
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DebugToken:    os.Getenv("DEBUG_TOKEN"),
	}

	if cfg.DBURL == "" {
		return nil, errors.New("database URL (DB_URL) environment variable is not set")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL environment variable is not set")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET environment variable is not set")
	}
	if len(cfg.SessionSecret) < chacha20poly1305.KeySize {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", chacha20poly1305.KeySize)
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, errors.New("SESSION_TTL must be positive")
	}
	cfg.SessionTTL = ttl

	cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.RateLimit, err = strconv.Atoi(getEnv("RATE_LIMIT", "30"))
	if err != nil || cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT %q", os.Getenv("RATE_LIMIT"))
	}

	cfg.TrustedProxies, err = parseProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if c.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

// parseProxies reads a comma-separated list of IPs and CIDR ranges.
func parseProxies(list string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("%q is not an IP address", entry)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
