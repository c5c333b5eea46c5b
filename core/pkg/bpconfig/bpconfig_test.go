package bpconfig_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/bpconfig"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TLS_CACHE_TTL_HOURS", "")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "")

	cfg := bpconfig.Load()

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "INFO", cfg.LogLevel)
	require.Equal(t, 24, cfg.TLSCacheTTLHours)
	require.Equal(t, 10.0, cfg.RequestTimeoutSec)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TLS_CACHE_TTL_HOURS", "48")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "2.5")

	cfg := bpconfig.Load()

	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, 48, cfg.TLSCacheTTLHours)
	require.Equal(t, 2.5, cfg.RequestTimeoutSec)
}

func TestLoadIgnoresUnparseableIntFallsBackToDefault(t *testing.T) {
	t.Setenv("TLS_CACHE_TTL_HOURS", "not-a-number")
	cfg := bpconfig.Load()
	require.Equal(t, 24, cfg.TLSCacheTTLHours)
}
