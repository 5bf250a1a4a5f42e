package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, "4101", cfg.AppPort)
	assert.Equal(t, "8000", cfg.SocketPort)
	assert.Equal(t, 1500, cfg.StartingBalance)
	assert.Equal(t, "postgres", cfg.Database.Store)
	assert.Equal(t, 2*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Database.TxRetries)
	assert.Equal(t, 3*time.Second, cfg.Runner.Interval)
	assert.Equal(t, 100, cfg.Runner.RoundCap)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("RUNNER_INTERVAL", "250ms")
	t.Setenv("STORE", "Memory")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg := Load()
	assert.Equal(t, 250*time.Millisecond, cfg.Runner.Interval)
	assert.Equal(t, "memory", cfg.Database.Store)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}
