// Package config provides configuration for the core server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core server configuration.
type Config struct {
	// Server settings
	ListenAddr string

	// Session store
	DatabaseURL string

	// Tokens
	JWTSecret  string
	AccessTTL  time.Duration
	SessionTTL time.Duration
	Issuer     string

	// External collaborators
	IdentityAuthorityURL string
	PolicyServiceURL     string
	PolicyTimeout        time.Duration

	// Machine credentials seeded at startup, "id:secret[,id:secret...]".
	ServiceCredentials string

	// Message broker (optional)
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string

	// Logging
	LogLevel  string
	LogFormat string
}

// FromEnv loads configuration from environment variables.
func FromEnv() *Config {
	return &Config{
		ListenAddr:           getEnv("CORE_LISTEN_ADDR", ":8080"),
		DatabaseURL:          getEnv("CORE_DATABASE_URL", ""),
		JWTSecret:            getEnv("CORE_JWT_SECRET", ""),
		AccessTTL:            getEnvDuration("CORE_ACCESS_TTL", 15*time.Minute),
		SessionTTL:           getEnvDuration("CORE_SESSION_TTL", 30*24*time.Hour),
		Issuer:               getEnv("CORE_TOKEN_ISSUER", "premises-manage"),
		IdentityAuthorityURL: getEnv("CORE_IDENTITY_URL", "http://localhost:8081"),
		PolicyServiceURL:     getEnv("CORE_POLICY_URL", ""),
		PolicyTimeout:        getEnvDuration("CORE_POLICY_TIMEOUT", 2*time.Second),
		ServiceCredentials:   getEnv("CORE_SERVICE_CREDENTIALS", ""),
		MQTTBrokerURL:        getEnv("CORE_MQTT_BROKER_URL", ""),
		MQTTClientID:         getEnv("CORE_MQTT_CLIENT_ID", "premises-core"),
		MQTTUsername:         getEnv("CORE_MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("CORE_MQTT_PASSWORD", ""),
		LogLevel:             getEnv("CORE_LOG_LEVEL", "info"),
		LogFormat:            getEnv("CORE_LOG_FORMAT", "text"),
	}
}

// ServiceCredentialPairs parses ServiceCredentials into id/secret pairs.
// Malformed entries are skipped.
func (c *Config) ServiceCredentialPairs() map[string]string {
	pairs := make(map[string]string)
	for _, entry := range strings.Split(c.ServiceCredentials, ",") {
		id, secret, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || id == "" || secret == "" {
			continue
		}
		pairs[id] = secret
	}
	return pairs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
