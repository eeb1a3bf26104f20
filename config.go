package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/example/workspace-realtime/modules/api"
)

// Config holds the process configuration loaded from the environment.
type Config struct {
	Port            string
	AllowedOrigins  string
	JWTSecret       string
	JWTIssuer       string
	InsecureAuth    bool
	ActivityLogSize int
	SendBufferSize  int
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int
	MaxChatLength   int
	MessageRate     float64
	MessageBurst    int
	ShutdownTimeout time.Duration
}

// loadConfig reads Config from environment variables.
func loadConfig() Config {
	return Config{
		Port:            getEnv("PORT", "3000"),
		AllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", ""),
		InsecureAuth:    getEnvBool("AUTH_INSECURE", false),
		ActivityLogSize: getEnvInt("ACTIVITY_LOG_SIZE", 50),
		SendBufferSize:  getEnvInt("SEND_BUFFER_SIZE", 256),
		PingInterval:    getEnvDuration("PING_INTERVAL", 25*time.Second),
		PongTimeout:     getEnvDuration("PONG_TIMEOUT", 60*time.Second),
		MaxMessageBytes: getEnvInt("MAX_MESSAGE_BYTES", 64*1024),
		MaxChatLength:   getEnvInt("MAX_CHAT_LENGTH", 5000),
		MessageRate:     getEnvFloat("MESSAGE_RATE", 10),
		MessageBurst:    getEnvInt("MESSAGE_BURST", 20),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// APIConfig converts Config into the api module settings.
func (c Config) APIConfig() api.Config {
	return api.Config{
		Port:           c.Port,
		AllowedOrigins: c.AllowedOrigins,
		Auth: api.AuthConfig{
			SecretKey: c.JWTSecret,
			Issuer:    c.JWTIssuer,
			Insecure:  c.InsecureAuth,
		},
		PingInterval:    c.PingInterval,
		PongTimeout:     c.PongTimeout,
		MaxMessageBytes: int64(c.MaxMessageBytes),
		Limits: api.Limits{
			MessageRate:  c.MessageRate,
			MessageBurst: c.MessageBurst,
		},
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvFloat returns environment variable as float64 or default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Printf("Warning: invalid float value for %s: %s, using default: %g", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
