package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the engine listens on.
	DefaultAddr = ":43210"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 512

	// DefaultTickRateHz drives the per-match simulation frequency.
	DefaultTickRateHz = 60.0
	// DefaultWinningScore ends a match once either side reaches it.
	DefaultWinningScore = 3
	// DefaultBallSpeed is the serve speed in court units per tick.
	DefaultBallSpeed = 0.3
	// DefaultSpeedGrowth multiplies the ball speed on every paddle save.
	DefaultSpeedGrowth = 1.12
	// DefaultSpeedCapFactor bounds the ball speed at this multiple of the serve speed.
	DefaultSpeedCapFactor = 4.0
	// DefaultPaddleHalfHeight is half the paddle span in court units.
	DefaultPaddleHalfHeight = 10.0

	// DefaultLogLevel controls verbosity for engine logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "engine.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the match engine.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string

	TickRateHz   float64
	WinningScore int

	BallSpeed        float64
	SpeedGrowth      float64
	SpeedCapFactor   float64
	PaddleHalfHeight float64

	AuthSecret     string
	AuthServiceURL string
	ResultsURL     string
	JournalDir     string

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the engine configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("PONG_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("PONG_ALLOWED_ORIGINS")),
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TLSCertPath:      strings.TrimSpace(os.Getenv("PONG_TLS_CERT")),
		TLSKeyPath:       strings.TrimSpace(os.Getenv("PONG_TLS_KEY")),
		TickRateHz:       DefaultTickRateHz,
		WinningScore:     DefaultWinningScore,
		BallSpeed:        DefaultBallSpeed,
		SpeedGrowth:      DefaultSpeedGrowth,
		SpeedCapFactor:   DefaultSpeedCapFactor,
		PaddleHalfHeight: DefaultPaddleHalfHeight,
		AuthSecret:       strings.TrimSpace(os.Getenv("PONG_AUTH_SECRET")),
		AuthServiceURL:   strings.TrimSpace(os.Getenv("PONG_AUTH_URL")),
		ResultsURL:       strings.TrimSpace(os.Getenv("PONG_RESULTS_URL")),
		JournalDir:       strings.TrimSpace(os.Getenv("PONG_JOURNAL_DIR")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("PONG_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("PONG_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("PONG_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_TICK_RATE_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_TICK_RATE_HZ must be a positive number, got %q", raw))
		} else {
			cfg.TickRateHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_WINNING_SCORE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_WINNING_SCORE must be a positive integer, got %q", raw))
		} else {
			cfg.WinningScore = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_BALL_SPEED")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_BALL_SPEED must be a positive number, got %q", raw))
		} else {
			cfg.BallSpeed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_SPEED_GROWTH")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 1 {
			problems = append(problems, fmt.Sprintf("PONG_SPEED_GROWTH must be a number >= 1, got %q", raw))
		} else {
			cfg.SpeedGrowth = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_SPEED_CAP_FACTOR")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 1 {
			problems = append(problems, fmt.Sprintf("PONG_SPEED_CAP_FACTOR must be a number >= 1, got %q", raw))
		} else {
			cfg.SpeedCapFactor = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_PADDLE_HALF_HEIGHT")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_PADDLE_HALF_HEIGHT must be a positive number, got %q", raw))
		} else {
			cfg.PaddleHalfHeight = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("PONG_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.AuthSecret == "" && cfg.AuthServiceURL == "" {
		problems = append(problems, "one of PONG_AUTH_SECRET or PONG_AUTH_URL must be provided")
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "PONG_TLS_CERT and PONG_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
