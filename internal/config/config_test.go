package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testTOML = `
live = false

[venue]
base_url = "https://api.example.com/trade-api/v2"
ws_url = "wss://api.example.com/trade-api/ws/v2"
timezone = "America/New_York"
request_timeout = "10s"
balance_poll_interval = "30s"

[logging]
level = "info"
format = "text"

[odds_sources.theoddsapi]
type = "odds-api"
base_url = "https://api.the-odds-api.com/v4"
bookmaker = "pinnacle"
live_poll_interval = "5s"
pregame_poll_interval = "60s"
timeout = "8s"
quota_warn_remaining = 500

[strategy]
taker_edge_cents = 5
maker_edge_cents = 2
min_net_cents = 1

[risk]
kelly_fraction = 0.25
max_contracts_per_market = 100
max_total_exposure_cents = 50000
max_concurrent_markets = 5

[momentum]
velocity_weight = 0.6
book_weight = 0.4
taker_threshold = 60
maker_threshold = 30
velocity_window = 10
velocity_scale = 4000.0
pressure_window = 10
pressure_scale = 50.0
depth_band_cents = 3

[execution]
tick_interval = "1s"
stale_odds_threshold_secs = 30

[simulation]
starting_balance_cents = 100000
taker_fill_rate = 0.85
maker_fill_rate = 0.4
latency_ms = 500
slip_mean = 0.5
slip_std = 0.5
max_hold_seconds = 300
seed = 42

[sports.nhl]
enabled = true
series_prefix = "KXNHLGAME"
label = "NHL"
hotkey = "h"
fair_value = "odds-feed"
odds_source = "theoddsapi"
odds_sport_key = "icehockey_nhl"

[sports.nhl.strategy]
taker_edge_cents = 7

[sports.nba]
enabled = false
series_prefix = "KXNBAGAME"
label = "NBA"
hotkey = "b"
fair_value = "score-feed"
odds_source = "theoddsapi"

[sports.nba.momentum]
bypass = true

[sports.nba.score_feed]
primary_url = "https://scores-a.example.com"
secondary_url = "https://scores-b.example.com"
failover_threshold = 3
timeout = "5s"
period_seconds = 720
regulation_periods = 4
overtime_seconds = 300

[sports.nba.win_prob]
home_advantage = 3.0
k_start = 0.08
k_range = 0.72
regulation_seconds = 2880
ot_k_start = 0.8
ot_k_range = 1.6
ot_seconds = 300
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(testTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Venue.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.Venue.RequestTimeout)
	}
	if got := cfg.OddsSources["theoddsapi"].Bookmaker; got != "pinnacle" {
		t.Errorf("bookmaker = %q", got)
	}
	if !cfg.Sports["nhl"].Enabled || cfg.Sports["nba"].Enabled {
		t.Error("sport enable flags wrong")
	}
	if cfg.Sports["nba"].ScoreFeed == nil || cfg.Sports["nba"].ScoreFeed.PeriodSeconds != 720 {
		t.Error("nba score_feed block not parsed")
	}
}

func TestSecretsComeFromEnv(t *testing.T) {
	path := writeTestConfig(t)
	t.Setenv("KALSHI_API_KEY_ID", "key-id-1")
	t.Setenv("ODDS_API_KEY", "odds-key-1")
	t.Setenv("ODDS_API_KEY_THEODDSAPI", "odds-key-2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Venue.APIKeyID != "key-id-1" {
		t.Errorf("api key id = %q", cfg.Venue.APIKeyID)
	}
	// Per-source env var wins over the generic one.
	if got := cfg.OddsSources["theoddsapi"].APIKey; got != "odds-key-2" {
		t.Errorf("odds api key = %q", got)
	}
}

func TestStrategyOverrideMerge(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	nhl := cfg.StrategyFor("nhl")
	if nhl.TakerEdgeCents != 7 {
		t.Errorf("nhl taker edge = %d, want override 7", nhl.TakerEdgeCents)
	}
	if nhl.MakerEdgeCents != 2 || nhl.MinNetCents != 1 {
		t.Errorf("nhl inherited fields wrong: %+v", nhl)
	}

	nba := cfg.StrategyFor("nba")
	if nba != cfg.Strategy {
		t.Errorf("nba without override should inherit global, got %+v", nba)
	}
}

func TestMomentumOverrideMerge(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	nba := cfg.MomentumFor("nba")
	if !nba.Bypass {
		t.Error("nba momentum bypass override lost")
	}
	if nba.TakerThreshold != 60 {
		t.Errorf("nba inherited taker threshold = %d", nba.TakerThreshold)
	}
	if cfg.MomentumFor("nhl").Bypass {
		t.Error("nhl must not inherit nba's bypass")
	}
}

func TestToggleSportRoundTrip(t *testing.T) {
	path := writeTestConfig(t)

	next, err := ToggleSport(path, "nba")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !next {
		t.Error("nba starts disabled, first toggle should enable")
	}

	next, err = ToggleSport(path, "nba")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if next {
		t.Error("second toggle should disable again")
	}

	// Double toggle leaves the loaded config identical to the original, and
	// unrelated keys untouched.
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sports["nba"].Enabled {
		t.Error("nba should be disabled after double toggle")
	}
	if !cfg.Sports["nhl"].Enabled {
		t.Error("nhl flag clobbered by toggling nba")
	}
	if cfg.Strategy.TakerEdgeCents != 5 {
		t.Error("unrelated strategy key clobbered")
	}
}

func TestToggleUnknownSport(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := ToggleSport(path, "cricket"); err == nil {
		t.Error("toggling an unknown sport should fail")
	}
}

func TestSetField(t *testing.T) {
	path := writeTestConfig(t)
	if err := SetField(path, "strategy.taker_edge_cents", 9); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Strategy.TakerEdgeCents != 9 {
		t.Errorf("taker edge = %d, want 9", cfg.Strategy.TakerEdgeCents)
	}
	if cfg.Risk.KellyFraction != 0.25 {
		t.Error("unrelated risk key clobbered")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	bad := *cfg
	bad.Risk.KellyFraction = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("kelly_fraction > 1 should fail validation")
	}

	bad = *cfg
	bad.Venue.BaseURL = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing venue base_url should fail validation")
	}

	bad = *cfg
	sports := map[string]SportConfig{}
	for k, v := range cfg.Sports {
		sports[k] = v
	}
	nhl := sports["nhl"]
	nhl.OddsSource = "missing"
	sports["nhl"] = nhl
	bad.Sports = sports
	if err := bad.Validate(); err == nil {
		t.Error("unknown odds source should fail validation")
	}
}

func TestSortedSportIDs(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	ids := cfg.SortedSportIDs()
	if len(ids) != 2 || ids[0] != "nba" || ids[1] != "nhl" {
		t.Errorf("ids = %v, want [nba nhl]", ids)
	}
}
