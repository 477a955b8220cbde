// Package config loads server configuration from .env and environment
// variables, generalizing the teacher's LoadConfig from a handful of
// flat fields into the nested shape a multi-transport automation server
// needs.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// TransportConfig describes one listen endpoint. Address is empty when
// the transport is disabled.
type TransportConfig struct {
	Address      string
	AuthRequired bool
}

// TLSConfig carries the certificate material for transports that accept
// TLS connections directly (rather than terminating TLS at a proxy).
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	ServerName string
	Locale     string
	TimeZone   string

	TCPLine           TransportConfig
	WebSocket         TransportConfig
	WebSocketPath     string
	CloudRelayURL     string
	CloudRelayAgentID string
	CloudRelayEnabled bool

	TLS TLSConfig

	PostgresDSN string
	RedisAddr   string

	MQTTBroker   string
	MQTTClientID string

	// PushButtonHardwareEnabled is loaded from the environment but not read
	// by cmd/automationd; Users.RequestPushButtonAuth is registered either way.
	PushButtonHardwareEnabled bool

	AsyncReplyTimeout      time.Duration
	NotificationBufferSize int

	JWTSecret string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from .env (if present), then environment
// variables, following the teacher's godotenv.Load + viper.AutomaticEnv
// pattern. A missing .env file is not an error — most deployments rely
// on env vars set by the process supervisor rather than a checked-in file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("SERVER_NAME", "automationd")
	viper.SetDefault("LOCALE", "en_US")
	viper.SetDefault("TIME_ZONE", "UTC")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("ASYNC_REPLY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("NOTIFICATION_BUFFER_SIZE", 256)
	viper.SetDefault("WEBSOCKET_PATH", "/ws")
	viper.SetDefault("TCP_AUTH_REQUIRED", true)
	viper.SetDefault("WEBSOCKET_AUTH_REQUIRED", true)
	viper.SetDefault("CLOUD_RELAY_AUTH_REQUIRED", true)
	viper.SetDefault("CLOUD_RELAY_ENABLED", false)
	viper.SetDefault("PUSH_BUTTON_HARDWARE_ENABLED", false)

	cfg := &Config{
		ServerName: viper.GetString("SERVER_NAME"),
		Locale:     viper.GetString("LOCALE"),
		TimeZone:   viper.GetString("TIME_ZONE"),

		TCPLine: TransportConfig{
			Address:      viper.GetString("TCP_LISTEN_ADDR"),
			AuthRequired: viper.GetBool("TCP_AUTH_REQUIRED"),
		},
		WebSocket: TransportConfig{
			Address:      viper.GetString("WEBSOCKET_LISTEN_ADDR"),
			AuthRequired: viper.GetBool("WEBSOCKET_AUTH_REQUIRED"),
		},
		WebSocketPath:     viper.GetString("WEBSOCKET_PATH"),
		CloudRelayURL:     viper.GetString("CLOUD_RELAY_URL"),
		CloudRelayAgentID: viper.GetString("CLOUD_RELAY_AGENT_ID"),
		CloudRelayEnabled: viper.GetBool("CLOUD_RELAY_ENABLED"),

		TLS: TLSConfig{
			CertFile: viper.GetString("TLS_CERT_FILE"),
			KeyFile:  viper.GetString("TLS_KEY_FILE"),
		},

		PostgresDSN: viper.GetString("DATABASE_URL"),
		RedisAddr:   viper.GetString("REDIS_ADDR"),

		MQTTBroker:   viper.GetString("MQTT_BROKER"),
		MQTTClientID: viper.GetString("MQTT_CLIENT_ID"),

		PushButtonHardwareEnabled: viper.GetBool("PUSH_BUTTON_HARDWARE_ENABLED"),

		AsyncReplyTimeout:      time.Duration(viper.GetInt("ASYNC_REPLY_TIMEOUT_SECONDS")) * time.Second,
		NotificationBufferSize: viper.GetInt("NOTIFICATION_BUFFER_SIZE"),

		JWTSecret: viper.GetString("JWT_SECRET"),
		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}
	return cfg, nil
}
