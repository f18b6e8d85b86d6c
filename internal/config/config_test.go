package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidateInSimulateMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "simulate"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate in simulate mode, got: %v", err)
	}
}

func TestServeModeRequiresFeedURL(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	cfg.Feed.WSURL = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for serve mode without ws_url")
	}
	if !strings.Contains(err.Error(), "ws_url") {
		t.Fatalf("error should mention ws_url, got: %v", err)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Risk.NumSimulations = 0
	cfg.Pipeline.ImminentBreachProb = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"mode", "n_simulations", "imminent_breach_prob"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidateVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "simulate"
	cfg.Venues = []VenueConfig{
		{ID: "uniswap_v3", Class: "dex"},
		{ID: "uniswap_v3", Class: "dex"},
		{ID: "weird", Class: "casino"},
		{ID: "aave_v3", Class: "lending", GasUSD: -1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate", "class", "non-negative"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XLIGO_MODE", "simulate")
	t.Setenv("XLIGO_SERVER_PORT", "9999")
	t.Setenv("XLIGO_RISK_SAFETY_MARGIN_HF", "1.1")
	t.Setenv("XLIGO_REDIS_ENABLED", "false")
	t.Setenv("XLIGO_PIPELINE_LOCK_TTL", "45s")
	t.Setenv("XLIGO_FEED_ASSETS", "ETH, WBTC ,LINK")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "simulate" {
		t.Errorf("Mode = %q, want simulate", cfg.Mode)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Risk.SafetyMarginHF != 1.1 {
		t.Errorf("Risk.SafetyMarginHF = %v, want 1.1", cfg.Risk.SafetyMarginHF)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be overridden to false")
	}
	if cfg.Pipeline.LockTTL.Duration != 45*time.Second {
		t.Errorf("Pipeline.LockTTL = %v, want 45s", cfg.Pipeline.LockTTL.Duration)
	}
	want := []string{"ETH", "WBTC", "LINK"}
	if len(cfg.Feed.Assets) != len(want) {
		t.Fatalf("Feed.Assets = %v, want %v", cfg.Feed.Assets, want)
	}
	for i := range want {
		if cfg.Feed.Assets[i] != want[i] {
			t.Fatalf("Feed.Assets = %v, want %v", cfg.Feed.Assets, want)
		}
	}
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("XLIGO_SERVER_PORT", "not-a-number")
	t.Setenv("XLIGO_PIPELINE_LOCK_TTL", "soon")

	cfg := Defaults()
	before := cfg
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != before.Server.Port {
		t.Errorf("Server.Port changed on malformed input: %d", cfg.Server.Port)
	}
	if cfg.Pipeline.LockTTL != before.Pipeline.LockTTL {
		t.Errorf("Pipeline.LockTTL changed on malformed input: %v", cfg.Pipeline.LockTTL.Duration)
	}
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("2m30s")); err != nil {
		t.Fatalf("UnmarshalText returned error: %v", err)
	}
	if d.Duration != 2*time.Minute+30*time.Second {
		t.Fatalf("parsed duration = %v, want 2m30s", d.Duration)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned error: %v", err)
	}
	if string(text) != "2m30s" {
		t.Fatalf("MarshalText = %q, want 2m30s", text)
	}
}
