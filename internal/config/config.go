// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a TOML file (default: configs/config.toml) with all
// credentials coming exclusively from environment variables — the credential
// fields are never decoded from the file.
//
// Runtime edits issued by the TUI (toggle a sport, update a field) rewrite
// the file in place through viper so unrelated keys survive.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the TOML file.
type Config struct {
	Live bool `mapstructure:"live"` // submit real orders instead of simulating

	Venue       VenueConfig                 `mapstructure:"venue"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Telemetry   TelemetryConfig             `mapstructure:"telemetry"`
	OddsSources map[string]OddsSourceConfig `mapstructure:"odds_sources"`
	Strategy    StrategyConfig              `mapstructure:"strategy"`
	Risk        RiskConfig                  `mapstructure:"risk"`
	Momentum    MomentumConfig              `mapstructure:"momentum"`
	Execution   ExecutionConfig             `mapstructure:"execution"`
	Simulation  SimulationConfig            `mapstructure:"simulation"`
	Sports      map[string]SportConfig      `mapstructure:"sports"`
}

// VenueConfig holds venue endpoints and credential locations.
// APIKeyID and PrivateKeyPath are env-only (KALSHI_API_KEY_ID,
// KALSHI_PRIVATE_KEY_PATH) and never read from the file.
type VenueConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	WSURL               string        `mapstructure:"ws_url"`
	Timezone            string        `mapstructure:"timezone"` // market timezone for game dates
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	BalancePollInterval time.Duration `mapstructure:"balance_poll_interval"`

	APIKeyID       string `mapstructure:"-"`
	PrivateKeyPath string `mapstructure:"-"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" | "json"
}

// TelemetryConfig controls the optional Prometheus /metrics listener.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"` // e.g. ":9100"
}

// OddsSourceConfig describes one named sportsbook odds source.
// APIKey is env-only: ODDS_API_KEY, overridable per source with
// ODDS_API_KEY_<NAME>.
type OddsSourceConfig struct {
	Type                string        `mapstructure:"type"` // "odds-api"
	BaseURL             string        `mapstructure:"base_url"`
	Bookmaker           string        `mapstructure:"bookmaker"` // filter; empty = first available
	LivePollInterval    time.Duration `mapstructure:"live_poll_interval"`
	PregamePollInterval time.Duration `mapstructure:"pregame_poll_interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	QuotaWarnRemaining  int           `mapstructure:"quota_warn_remaining"`

	APIKey string `mapstructure:"-"`
}

// StrategyConfig holds the global edge thresholds in cents.
type StrategyConfig struct {
	TakerEdgeCents int `mapstructure:"taker_edge_cents"`
	MakerEdgeCents int `mapstructure:"maker_edge_cents"`
	MinNetCents    int `mapstructure:"min_net_cents"`
}

// RiskConfig holds sizing and exposure limits.
type RiskConfig struct {
	KellyFraction         float64 `mapstructure:"kelly_fraction"`
	MaxContractsPerMarket int     `mapstructure:"max_contracts_per_market"`
	MaxTotalExposureCents int     `mapstructure:"max_total_exposure_cents"`
	MaxConcurrentMarkets  int     `mapstructure:"max_concurrent_markets"`
}

// MomentumConfig tunes the composite momentum gate and its inputs.
type MomentumConfig struct {
	VelocityWeight float64 `mapstructure:"velocity_weight"`
	BookWeight     float64 `mapstructure:"book_weight"`
	TakerThreshold int     `mapstructure:"taker_threshold"`
	MakerThreshold int     `mapstructure:"maker_threshold"`
	VelocityWindow int     `mapstructure:"velocity_window"` // samples
	VelocityScale  float64 `mapstructure:"velocity_scale"`
	PressureWindow int     `mapstructure:"pressure_window"`
	PressureScale  float64 `mapstructure:"pressure_scale"`
	DepthBandCents int     `mapstructure:"depth_band_cents"` // near-touch band
	Bypass         bool    `mapstructure:"bypass"`
}

// ExecutionConfig paces the scheduler.
type ExecutionConfig struct {
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	StaleOddsThresholdSecs int           `mapstructure:"stale_odds_threshold_secs"`
}

// SimulationConfig tunes execution realism for simulated fills.
type SimulationConfig struct {
	StartingBalanceCents     int     `mapstructure:"starting_balance_cents"`
	TakerFillRate            float64 `mapstructure:"taker_fill_rate"`
	MakerFillRate            float64 `mapstructure:"maker_fill_rate"`
	LatencyMs                int     `mapstructure:"latency_ms"`
	SlipMean                 float64 `mapstructure:"slip_mean"`
	SlipStd                  float64 `mapstructure:"slip_std"`
	MaxHoldSeconds           int     `mapstructure:"max_hold_seconds"`
	MakerRequirePriceThrough bool    `mapstructure:"maker_require_price_through"`
	Seed                     int64   `mapstructure:"seed"`
}

// ScoreFeedConfig describes the live score providers for one sport.
type ScoreFeedConfig struct {
	PrimaryURL        string        `mapstructure:"primary_url"`
	SecondaryURL      string        `mapstructure:"secondary_url"`
	FailoverThreshold int           `mapstructure:"failover_threshold"` // consecutive failures
	Timeout           time.Duration `mapstructure:"timeout"`
	PeriodSeconds     int           `mapstructure:"period_seconds"`     // e.g. 720 per NBA quarter
	RegulationPeriods int           `mapstructure:"regulation_periods"` // e.g. 4
	OvertimeSeconds   int           `mapstructure:"overtime_seconds"`   // e.g. 300
}

// WinProbConfig parametrises the logistic win-probability model.
type WinProbConfig struct {
	HomeAdvantage     float64 `mapstructure:"home_advantage"`
	KStart            float64 `mapstructure:"k_start"`
	KRange            float64 `mapstructure:"k_range"`
	RegulationSeconds int     `mapstructure:"regulation_seconds"`
	OTKStart          float64 `mapstructure:"ot_k_start"`
	OTKRange          float64 `mapstructure:"ot_k_range"`
	OTSeconds         int     `mapstructure:"ot_seconds"`
}

// SportConfig configures one per-sport pipeline.
type SportConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SeriesPrefix string `mapstructure:"series_prefix"` // venue ticker prefix, e.g. "KXNBAGAME"
	Label        string `mapstructure:"label"`
	Hotkey       string `mapstructure:"hotkey"`
	FairValue    string `mapstructure:"fair_value"`     // "score-feed" | "odds-feed"
	OddsSource   string `mapstructure:"odds_source"`    // name in OddsSources
	OddsSportKey string `mapstructure:"odds_sport_key"` // upstream sport key, e.g. "basketball_nba"
	ThreeWay     bool   `mapstructure:"three_way"`   // sport settles home/away/draw
	MMA          bool   `mapstructure:"mma"`         // last-name matching

	ScoreFeed *ScoreFeedConfig  `mapstructure:"score_feed"`
	WinProb   *WinProbConfig    `mapstructure:"win_prob"`
	Strategy  *StrategyOverride `mapstructure:"strategy"`
	Momentum  *MomentumOverride `mapstructure:"momentum"`
}

// StrategyOverride is a field-level merge over the global strategy config:
// nil fields inherit.
type StrategyOverride struct {
	TakerEdgeCents *int `mapstructure:"taker_edge_cents"`
	MakerEdgeCents *int `mapstructure:"maker_edge_cents"`
	MinNetCents    *int `mapstructure:"min_net_cents"`
}

// MomentumOverride is a field-level merge over the global momentum config.
type MomentumOverride struct {
	VelocityWeight *float64 `mapstructure:"velocity_weight"`
	BookWeight     *float64 `mapstructure:"book_weight"`
	TakerThreshold *int     `mapstructure:"taker_threshold"`
	MakerThreshold *int     `mapstructure:"maker_threshold"`
	Bypass         *bool    `mapstructure:"bypass"`
}

// Load reads config from a TOML file and applies env-var secrets.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Venue.APIKeyID = os.Getenv("KALSHI_API_KEY_ID")
	cfg.Venue.PrivateKeyPath = os.Getenv("KALSHI_PRIVATE_KEY_PATH")

	for name, src := range cfg.OddsSources {
		key := os.Getenv("ODDS_API_KEY_" + strings.ToUpper(name))
		if key == "" {
			key = os.Getenv("ODDS_API_KEY")
		}
		src.APIKey = key
		cfg.OddsSources[name] = src
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url is required")
	}
	if c.Venue.WSURL == "" {
		return fmt.Errorf("venue.ws_url is required")
	}
	if c.Venue.Timezone == "" {
		return fmt.Errorf("venue.timezone is required")
	}
	if c.Live {
		if c.Venue.APIKeyID == "" {
			return fmt.Errorf("KALSHI_API_KEY_ID must be set for live trading")
		}
		if c.Venue.PrivateKeyPath == "" {
			return fmt.Errorf("KALSHI_PRIVATE_KEY_PATH must be set for live trading")
		}
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be in (0, 1]")
	}
	if c.Risk.MaxContractsPerMarket <= 0 {
		return fmt.Errorf("risk.max_contracts_per_market must be > 0")
	}
	if c.Risk.MaxTotalExposureCents <= 0 {
		return fmt.Errorf("risk.max_total_exposure_cents must be > 0")
	}
	if c.Risk.MaxConcurrentMarkets <= 0 {
		return fmt.Errorf("risk.max_concurrent_markets must be > 0")
	}

	for id, sport := range c.Sports {
		if !sport.Enabled {
			continue
		}
		if sport.SeriesPrefix == "" {
			return fmt.Errorf("sports.%s.series_prefix is required", id)
		}
		switch sport.FairValue {
		case "odds-feed":
			if _, ok := c.OddsSources[sport.OddsSource]; !ok {
				return fmt.Errorf("sports.%s.odds_source %q is not defined", id, sport.OddsSource)
			}
		case "score-feed":
			if sport.ScoreFeed == nil {
				return fmt.Errorf("sports.%s needs a score_feed block", id)
			}
			if sport.WinProb == nil {
				return fmt.Errorf("sports.%s needs a win_prob block", id)
			}
			// Score-feed sports still poll an odds source for the velocity tracker.
			if sport.OddsSource != "" {
				if _, ok := c.OddsSources[sport.OddsSource]; !ok {
					return fmt.Errorf("sports.%s.odds_source %q is not defined", id, sport.OddsSource)
				}
			}
		default:
			return fmt.Errorf("sports.%s.fair_value must be \"score-feed\" or \"odds-feed\"", id)
		}
	}

	return nil
}

// StrategyFor returns the global strategy config with the sport's overrides
// merged field-by-field.
func (c *Config) StrategyFor(sportID string) StrategyConfig {
	out := c.Strategy
	sport, ok := c.Sports[sportID]
	if !ok || sport.Strategy == nil {
		return out
	}
	o := sport.Strategy
	if o.TakerEdgeCents != nil {
		out.TakerEdgeCents = *o.TakerEdgeCents
	}
	if o.MakerEdgeCents != nil {
		out.MakerEdgeCents = *o.MakerEdgeCents
	}
	if o.MinNetCents != nil {
		out.MinNetCents = *o.MinNetCents
	}
	return out
}

// MomentumFor returns the global momentum config with the sport's overrides
// merged field-by-field.
func (c *Config) MomentumFor(sportID string) MomentumConfig {
	out := c.Momentum
	sport, ok := c.Sports[sportID]
	if !ok || sport.Momentum == nil {
		return out
	}
	o := sport.Momentum
	if o.VelocityWeight != nil {
		out.VelocityWeight = *o.VelocityWeight
	}
	if o.BookWeight != nil {
		out.BookWeight = *o.BookWeight
	}
	if o.TakerThreshold != nil {
		out.TakerThreshold = *o.TakerThreshold
	}
	if o.MakerThreshold != nil {
		out.MakerThreshold = *o.MakerThreshold
	}
	if o.Bypass != nil {
		out.Bypass = *o.Bypass
	}
	return out
}

// SortedSportIDs returns sport identifiers in a stable order so pipelines
// run — and debit the cycle bankroll — deterministically.
func (c *Config) SortedSportIDs() []string {
	ids := make([]string, 0, len(c.Sports))
	for id := range c.Sports {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// ToggleSport flips sports.<id>.enabled in the config file, preserving every
// other key. Toggling twice restores the original file semantics.
func ToggleSport(path, sportID string) (bool, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return false, fmt.Errorf("read config: %w", err)
	}

	key := "sports." + sportID + ".enabled"
	if !v.IsSet("sports." + sportID) {
		return false, fmt.Errorf("unknown sport %q", sportID)
	}
	next := !v.GetBool(key)
	v.Set(key, next)

	if err := v.WriteConfig(); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return next, nil
}

// SetField writes one dotted key in the config file (load → modify → write).
func SetField(path, key string, value any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.Set(key, value)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
