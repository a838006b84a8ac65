// utils/config.go
package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the service and the CLI read from the environment.
type Config struct {
	DatabaseURL    string
	Port           string
	ServiceToken   string
	AllowedOrigins string

	LifecycleInterval     time.Duration
	ReferenceZone         *time.Location
	SettlementLease       time.Duration
	SettlementConcurrency int
	PaymentRefTTL         time.Duration
	ReceiptPollInterval   time.Duration

	R2 R2Config
}

// R2Config holds the Cloudflare R2 settings. Archiving is off when Enabled is false.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// LoadConfig reads the environment. Call godotenv.Load first if a .env file
// should be honoured.
func LoadConfig() (*Config, error) {
	var err error
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           envOr("PORT", "5200"),
		ServiceToken:   os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins: normalizeOrigins(envOr("ALLOWED_ORIGINS", "http://localhost:3000")),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if cfg.LifecycleInterval, err = envDuration("LIFECYCLE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SettlementLease, err = envDuration("SETTLEMENT_LEASE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PaymentRefTTL, err = envDuration("PAYMENT_REF_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReceiptPollInterval, err = envDuration("RECEIPT_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettlementConcurrency, err = envInt("SETTLEMENT_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.SettlementConcurrency < 1 {
		return nil, errors.New("SETTLEMENT_CONCURRENCY must be at least 1")
	}
	if cfg.ReferenceZone, err = ParseOffset(envOr("REFERENCE_UTC_OFFSET", "+05:30")); err != nil {
		return nil, fmt.Errorf("REFERENCE_UTC_OFFSET: %w", err)
	}
	return cfg, nil
}

// ParseOffset turns "+05:30", "-0800" or "Z" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "" || s == "+00:00" {
		return time.FixedZone("UTC", 0), nil
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("offset %q must start with + or -", s)
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 4 {
		return nil, fmt.Errorf("offset %q must look like +HH:MM", s)
	}
	hh, err := strconv.Atoi(body[:2])
	if err != nil {
		return nil, fmt.Errorf("offset %q: bad hours", s)
	}
	mm, err := strconv.Atoi(body[2:])
	if err != nil || mm > 59 || hh > 14 {
		return nil, fmt.Errorf("offset %q out of range", s)
	}
	return time.FixedZone("UTC"+s, sign*(hh*3600+mm*60)), nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// normalizeOrigins trims each comma-separated origin for fiber's cors config.
func normalizeOrigins(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
