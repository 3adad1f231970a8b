package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr     string
	HTTPAddr string

	WriteWaitMS       int
	PongWaitMS        int
	PingPeriodMS      int
	MaxMessageBytes   int
	MaxConnections    int
	IdleTimeoutMS     int
	ShutdownTimeoutMS int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads the configuration from the environment. Zero limits mean
// "unbounded"; HTTP_ADDR set to the empty string disables the HTTP side.
func Load() Config {
	return Config{
		Addr:              getEnv("ADDR", ":3000"),
		HTTPAddr:          getEnvAllowEmpty("HTTP_ADDR", ":8080"),
		WriteWaitMS:       getEnvInt("WRITE_WAIT_MS", 5000),
		PongWaitMS:        getEnvInt("PONG_WAIT_MS", 60000),
		PingPeriodMS:      getEnvInt("PING_PERIOD_MS", 50000),
		MaxMessageBytes:   getEnvInt("MAX_MESSAGE_BYTES", 64*1024),
		MaxConnections:    getEnvInt("MAX_CONNECTIONS", 0),
		IdleTimeoutMS:     getEnvInt("IDLE_TIMEOUT_MS", 0),
		ShutdownTimeoutMS: getEnvInt("SHUTDOWN_TIMEOUT_MS", 5000),

		LogLevel:  getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

// Default is Load with an empty environment.
func Default() Config {
	return Config{
		Addr:              ":3000",
		HTTPAddr:          ":8080",
		WriteWaitMS:       5000,
		PongWaitMS:        60000,
		PingPeriodMS:      50000,
		MaxMessageBytes:   64 * 1024,
		ShutdownTimeoutMS: 5000,
		LogLevel:          slog.LevelInfo,
		LogFormat:         "text",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return fallback
}
