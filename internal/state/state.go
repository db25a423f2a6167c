// Package state is the contract between the engine and the terminal
// renderer: a single-writer snapshot bus flowing outward and a bounded
// command channel flowing back.
//
// The scheduler is the only writer. Readers (the TUI, the state propagator)
// observe the latest value without ever blocking the writer; a capacity-one
// notify channel coalesces bursts of updates.
package state

import (
	"sync"
	"time"

	"github.com/brabsmit/kalshi-arb/internal/sim"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// CommandKind enumerates TUI → engine commands.
type CommandKind string

const (
	CmdPause           CommandKind = "pause"
	CmdResume          CommandKind = "resume"
	CmdQuit            CommandKind = "quit"
	CmdToggleSport     CommandKind = "toggle_sport"
	CmdKillSwitch      CommandKind = "kill_switch"
	CmdFetchDiagnostic CommandKind = "fetch_diagnostic"
	CmdOpenConfig      CommandKind = "open_config"
	CmdUpdateConfig    CommandKind = "update_config_field"
)

// Command is one instruction from the TUI.
type Command struct {
	Kind  CommandKind
	Sport string // toggle-sport
	Key   string // update-config-field
	Value string
}

// MarketRow is one renderable line of the live market table.
type MarketRow struct {
	Sport        string       `json:"sport"`
	Ticker       string       `json:"ticker"`
	Game         string       `json:"game"`
	Fair         int          `json:"fair"`
	Bid          int          `json:"bid"`
	Ask          int          `json:"ask"`
	Edge         int          `json:"edge"`
	Action       types.Action `json:"action"`
	Momentum     int          `json:"momentum"`
	StalenessSec int          `json:"staleness_sec"`
	LatencyMs    int          `json:"latency_ms"`
}

// TradeSummary is one recent execution with its signal-trace digest.
type TradeSummary struct {
	Time     time.Time         `json:"time"`
	Ticker   string            `json:"ticker"`
	Kind     string            `json:"kind"` // entry / exit / miss / reject
	Price    int               `json:"price"`
	Quantity int               `json:"quantity"`
	PnL      int               `json:"pnl"`
	Trace    types.SignalTrace `json:"trace"`
}

// DiagnosticRow surfaces per-sport pipeline health.
type DiagnosticRow struct {
	Sport          string    `json:"sport"`
	LastPoll       time.Time `json:"last_poll"`
	CacheServed    bool      `json:"cache_served"`
	ActiveProvider string    `json:"active_provider"`
	LiveGames      int       `json:"live_games"`
	PregameGames   int       `json:"pregame_games"`
	ClosedGames    int       `json:"closed_games"`
}

// QuotaStatus summarises odds-API usage for the header bar.
type QuotaStatus struct {
	Used        int     `json:"used"`
	Remaining   int     `json:"remaining"`
	BurnPerHour float64 `json:"burn_per_hour"`
	HoursLeft   float64 `json:"hours_left"`
}

// Snapshot is the complete render state. The engine rebuilds and publishes
// it every iteration; the TUI renders whatever is latest.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Paused      bool `json:"paused"`
	Live        bool `json:"live"`
	WSConnected bool `json:"ws_connected"`

	BalanceCents  int `json:"balance_cents"`
	ExposureCents int `json:"exposure_cents"`
	RealizedCents int `json:"realized_cents"`

	SimCounters sim.Counters `json:"sim_counters"`

	Rows        []MarketRow         `json:"rows"`
	Positions   []types.SimPosition `json:"positions"`
	Trades      []TradeSummary      `json:"trades"`
	Logs        []string            `json:"logs"`
	Diagnostics []DiagnosticRow     `json:"diagnostics"`

	SportEnabled map[string]bool `json:"sport_enabled"`
	Quota        QuotaStatus     `json:"quota"`

	LiveGames    int `json:"live_games"`
	PregameGames int `json:"pregame_games"`
	ClosedGames  int `json:"closed_games"`
}

// Bus carries snapshots out and commands in.
type Bus struct {
	mu      sync.RWMutex
	latest  Snapshot
	changed chan struct{}
	cmds    chan Command
}

// NewBus creates a bus with a bounded command queue.
func NewBus() *Bus {
	return &Bus{
		changed: make(chan struct{}, 1),
		cmds:    make(chan Command, 32),
	}
}

// Publish replaces the latest snapshot. Never blocks.
func (b *Bus) Publish(s Snapshot) {
	b.mu.Lock()
	b.latest = s
	b.mu.Unlock()

	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// Latest returns the most recent snapshot.
func (b *Bus) Latest() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// Changed signals (coalesced) that a new snapshot is available.
func (b *Bus) Changed() <-chan struct{} { return b.changed }

// Send enqueues a TUI command; returns false when the queue is full.
func (b *Bus) Send(cmd Command) bool {
	select {
	case b.cmds <- cmd:
		return true
	default:
		return false
	}
}

// Commands is drained by the scheduler each iteration.
func (b *Bus) Commands() <-chan Command { return b.cmds }
