// Package bpconfig loads process-wide configuration for the validation
// engine from environment variables, 12-factor style.
package bpconfig

import (
	"os"
	"strconv"
)

// Config holds the engine's runtime configuration.
type Config struct {
	Port              string
	HealthPort        string
	LogLevel          string
	DatabaseURL       string
	ChainProfilePath  string
	WhoisServer       string
	MXServer          string
	ChainURL          string
	RequestTimeoutSec float64
	TLSCacheTTLHours  int
	OTLPEndpoint      string
}

// Load reads Config from the environment, applying the same defaults a
// developer running the engine locally would want.
func Load() *Config {
	return &Config{
		Port:              getenvDefault("PORT", "8080"),
		HealthPort:        getenvDefault("HEALTH_PORT", "8081"),
		LogLevel:          getenvDefault("LOG_LEVEL", "INFO"),
		DatabaseURL:       getenvDefault("DATABASE_URL", "postgres://bpvalidate@localhost:5432/bpvalidate?sslmode=disable"),
		ChainProfilePath:  getenvDefault("CHAIN_PROFILE_PATH", ""),
		WhoisServer:       getenvDefault("WHOIS_SERVER", "whois.arin.net"),
		MXServer:          getenvDefault("MX_SERVER", "8.8.8.8:53"),
		ChainURL:          getenvDefault("CHAIN_URL", "https://eos.greymass.com"),
		RequestTimeoutSec: getenvFloatDefault("REQUEST_TIMEOUT_SECONDS", 10),
		TLSCacheTTLHours:  getenvIntDefault("TLS_CACHE_TTL_HOURS", 24),
		OTLPEndpoint:      getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
