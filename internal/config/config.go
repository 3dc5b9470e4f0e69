package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP + WS server
	Host string
	Port int

	// Simulation timing
	TickInterval     time.Duration // real time between ticks
	TickStepSec      int           // game seconds advanced per tick
	MatchDurationSec int
	KickoffDelaySec  int

	// Pacing
	PacingConfigPath string

	// Archive
	ArchivePath string

	// Control
	ControlToken string

	// Alerts
	AlertWebhookURL string

	// Rooms
	RoomGraceSec int

	// Demo fixtures scheduled at startup (0 disables)
	DemoFixtures int

	// Spectator client
	ServerWSURL     string
	ServerHTTPURL   string
	PollIntervalSec int

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Host: envStr("LIVEMATCH_HOST", "0.0.0.0"),
		Port: envInt("LIVEMATCH_PORT", 8090),

		TickInterval:     time.Duration(envPosInt("TICK_INTERVAL_MS", 2000)) * time.Millisecond,
		TickStepSec:      envPosInt("TICK_STEP_SEC", 60),
		MatchDurationSec: envPosInt("MATCH_DURATION_SEC", 5400),
		KickoffDelaySec:  envInt("KICKOFF_DELAY_SEC", 5),

		PacingConfigPath: envStr("PACING_CONFIG_PATH", ""),

		ArchivePath: envStr("ARCHIVE_PATH", "livematch_archive.db"),

		// Empty token disables the control surface entirely.
		ControlToken: envStr("CONTROL_TOKEN", ""),

		AlertWebhookURL: envStr("ALERT_WEBHOOK_URL", ""),

		RoomGraceSec: envInt("ROOM_GRACE_SEC", 60),

		DemoFixtures: envInt("DEMO_FIXTURES", 2),

		ServerWSURL:     envStr("SERVER_WS_URL", "ws://127.0.0.1:8090/ws"),
		ServerHTTPURL:   envStr("SERVER_HTTP_URL", "http://127.0.0.1:8090"),
		PollIntervalSec: envPosInt("POLL_INTERVAL_SEC", 3),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envPosInt is envInt for values that feed tickers and clock steps, where
// zero or negative would panic or stall. Bad values fall back to the default.
func envPosInt(key string, fallback int) int {
	if n := envInt(key, fallback); n > 0 {
		return n
	}
	return fallback
}
