package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitConfig_FromViper(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("server.rate_limit_rps", 2.5)
	viper.Set("server.rate_limit_burst", 7)

	cfg := rateLimitConfig()
	assert.Equal(t, 2.5, cfg.RPS)
	assert.Equal(t, 7, cfg.Burst)
	assert.Contains(t, cfg.ExemptPrefixes, "/api/v1/transfers/stream")
}

func TestRateLimitConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.SetDefault("server.rate_limit_rps", 20)

	cfg := rateLimitConfig()
	assert.Equal(t, float64(20), cfg.RPS)
	assert.Zero(t, cfg.Burst)
}

func TestReconcileConfig_FromViper(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("reconcile.interval", "30s")
	viper.Set("reconcile.grace_period", "2m")
	viper.Set("reconcile.batch_limit", 250)

	cfg := reconcileConfig()
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.GracePeriod)
	assert.Equal(t, 250, cfg.BatchLimit)
}
