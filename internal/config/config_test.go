package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PONG_AUTH_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("unexpected address %q", cfg.Address)
	}
	if cfg.TickRateHz != DefaultTickRateHz {
		t.Fatalf("unexpected tick rate %v", cfg.TickRateHz)
	}
	if cfg.WinningScore != DefaultWinningScore {
		t.Fatalf("unexpected winning score %d", cfg.WinningScore)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("unexpected ping interval %v", cfg.PingInterval)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PONG_ADDR", ":9000")
	t.Setenv("PONG_TICK_RATE_HZ", "30")
	t.Setenv("PONG_WINNING_SCORE", "5")
	t.Setenv("PONG_PING_INTERVAL", "10s")
	t.Setenv("PONG_RESULTS_URL", "http://results.local/api/matches")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != ":9000" {
		t.Fatalf("unexpected address %q", cfg.Address)
	}
	if cfg.TickRateHz != 30 {
		t.Fatalf("unexpected tick rate %v", cfg.TickRateHz)
	}
	if cfg.WinningScore != 5 {
		t.Fatalf("unexpected winning score %d", cfg.WinningScore)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Fatalf("unexpected ping interval %v", cfg.PingInterval)
	}
	if cfg.ResultsURL != "http://results.local/api/matches" {
		t.Fatalf("unexpected results url %q", cfg.ResultsURL)
	}
}

func TestLoadPhysicsTunableDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BallSpeed != DefaultBallSpeed {
		t.Fatalf("unexpected ball speed %v", cfg.BallSpeed)
	}
	if cfg.SpeedGrowth != DefaultSpeedGrowth {
		t.Fatalf("unexpected speed growth %v", cfg.SpeedGrowth)
	}
	if cfg.SpeedCapFactor != DefaultSpeedCapFactor {
		t.Fatalf("unexpected speed cap factor %v", cfg.SpeedCapFactor)
	}
	if cfg.PaddleHalfHeight != DefaultPaddleHalfHeight {
		t.Fatalf("unexpected paddle half height %v", cfg.PaddleHalfHeight)
	}
}

func TestLoadPhysicsTunableOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PONG_BALL_SPEED", "0.5")
	t.Setenv("PONG_SPEED_GROWTH", "1.25")
	t.Setenv("PONG_SPEED_CAP_FACTOR", "2")
	t.Setenv("PONG_PADDLE_HALF_HEIGHT", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BallSpeed != 0.5 {
		t.Fatalf("unexpected ball speed %v", cfg.BallSpeed)
	}
	if cfg.SpeedGrowth != 1.25 {
		t.Fatalf("unexpected speed growth %v", cfg.SpeedGrowth)
	}
	if cfg.SpeedCapFactor != 2 {
		t.Fatalf("unexpected speed cap factor %v", cfg.SpeedCapFactor)
	}
	if cfg.PaddleHalfHeight != 15 {
		t.Fatalf("unexpected paddle half height %v", cfg.PaddleHalfHeight)
	}
}

func TestLoadRejectsInvalidPhysicsTunables(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PONG_BALL_SPEED", "0")
	t.Setenv("PONG_SPEED_GROWTH", "0.5")
	t.Setenv("PONG_SPEED_CAP_FACTOR", "none")
	t.Setenv("PONG_PADDLE_HALF_HEIGHT", "-3")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid physics tunables")
	}
	for _, name := range []string{"PONG_BALL_SPEED", "PONG_SPEED_GROWTH", "PONG_SPEED_CAP_FACTOR", "PONG_PADDLE_HALF_HEIGHT"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error should mention %s: %v", name, err)
		}
	}
}

func TestLoadRejectsInvalidOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PONG_TICK_RATE_HZ", "fast")
	t.Setenv("PONG_WINNING_SCORE", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid overrides")
	} else {
		if !strings.Contains(err.Error(), "PONG_TICK_RATE_HZ") {
			t.Fatalf("error should mention tick rate: %v", err)
		}
		if !strings.Contains(err.Error(), "PONG_WINNING_SCORE") {
			t.Fatalf("error should mention winning score: %v", err)
		}
	}
}

func TestLoadRequiresAuthConfiguration(t *testing.T) {
	t.Setenv("PONG_AUTH_SECRET", "")
	t.Setenv("PONG_AUTH_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no auth configuration is present")
	}
}

func TestLoadRequiresMatchedTLSPair(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PONG_TLS_CERT", "/tmp/cert.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for mismatched TLS configuration")
	}
}
