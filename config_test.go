package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 50, cfg.ActivityLogSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PongTimeout)
	assert.Equal(t, 5000, cfg.MaxChatLength)
	assert.False(t, cfg.InsecureAuth)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("AUTH_INSECURE", "true")
	t.Setenv("ACTIVITY_LOG_SIZE", "10")
	t.Setenv("PING_INTERVAL", "5s")
	t.Setenv("MESSAGE_RATE", "2.5")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := loadConfig()
	apiCfg := cfg.APIConfig()

	assert.Equal(t, "8080", apiCfg.Port)
	assert.True(t, apiCfg.Auth.Insecure)
	assert.Equal(t, "s3cret", apiCfg.Auth.SecretKey)
	assert.Equal(t, 10, cfg.ActivityLogSize)
	assert.Equal(t, 5*time.Second, apiCfg.PingInterval)
	assert.Equal(t, 2.5, apiCfg.Limits.MessageRate)
}

func TestGetEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("SEND_BUFFER_SIZE", "lots")
	t.Setenv("AUTH_INSECURE", "maybe")
	t.Setenv("PONG_TIMEOUT", "soon")

	assert.Equal(t, 256, getEnvInt("SEND_BUFFER_SIZE", 256))
	assert.False(t, getEnvBool("AUTH_INSECURE", false))
	assert.Equal(t, time.Minute, getEnvDuration("PONG_TIMEOUT", time.Minute))
}
