// Package engine is the central coordinator of the arbitrage system.
//
// It wires together all subsystems:
//
//  1. The market index maps venue contracts to canonical games at startup.
//  2. The WebSocket feed mirrors the venue order book into the depth book.
//  3. One pipeline per enabled sport turns external data into trade signals.
//  4. The fill simulator (or the live order path) advances positions.
//  5. The state bus carries snapshots to the renderer and commands back.
//
// Concurrency model: the scheduler goroutine is the only writer of engine
// state and the only publisher of snapshots. The WebSocket listener writes
// only into the mutex-guarded depth book; a book update wakes the scheduler
// early. A ~5 Hz propagation tick refreshes market-row bid/ask between full
// pipeline cycles. Pipelines run sequentially in sorted sport order so
// per-cycle bankroll deduction is deterministic.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brabsmit/kalshi-arb/internal/book"
	"github.com/brabsmit/kalshi-arb/internal/config"
	"github.com/brabsmit/kalshi-arb/internal/feed"
	"github.com/brabsmit/kalshi-arb/internal/index"
	"github.com/brabsmit/kalshi-arb/internal/pipeline"
	"github.com/brabsmit/kalshi-arb/internal/risk"
	"github.com/brabsmit/kalshi-arb/internal/sim"
	"github.com/brabsmit/kalshi-arb/internal/state"
	"github.com/brabsmit/kalshi-arb/internal/telemetry"
	"github.com/brabsmit/kalshi-arb/internal/venue"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

const (
	propagateInterval = 200 * time.Millisecond // ~5 Hz row refresh
	pausedSleep       = 250 * time.Millisecond
	maxLogLines       = 100
	maxTrades         = 50
)

// Engine owns every long-lived component and the scheduler loop.
type Engine struct {
	cfg     *config.Config
	cfgPath string

	client    *venue.Client
	feed      *venue.Feed
	depthBook *book.Book
	idx       *index.Index
	riskMgr   *risk.Manager
	simulator *sim.Simulator
	registry  *venue.CancelRegistry
	bus       *state.Bus
	metrics   *telemetry.Metrics

	pipelines []*pipeline.Pipeline
	enabled   map[string]bool

	// scheduler-owned state (no locking: single goroutine)
	paused        bool
	balanceCents  int
	lastBalanceAt time.Time
	lastRows      []state.MarketRow
	lastDiags     []state.DiagnosticRow
	quota         state.QuotaStatus
	logLines      []string
	trades        []state.TradeSummary
	counts        struct{ live, pregame, closed int }

	logger *slog.Logger
}

// New wires the engine from config. Network-dependent startup (catalog
// indexing, WS connect) happens in Run.
func New(cfg *config.Config, cfgPath string, metrics *telemetry.Metrics, logger *slog.Logger) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Venue.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading market timezone: %w", err)
	}

	var signer venue.Signer
	if cfg.Venue.APIKeyID != "" && cfg.Venue.PrivateKeyPath != "" {
		s, err := venue.NewRSASigner(cfg.Venue.APIKeyID, cfg.Venue.PrivateKeyPath)
		if err != nil {
			if cfg.Live {
				return nil, fmt.Errorf("venue signer: %w", err)
			}
			logger.Warn("venue signer unavailable, simulation only", "error", err)
		} else {
			signer = s
		}
	} else if cfg.Live {
		return nil, fmt.Errorf("live mode requires venue credentials")
	}

	client, err := venue.NewClient(cfg.Venue, signer, logger)
	if err != nil {
		return nil, err
	}

	depthBook := book.New()

	e := &Engine{
		cfg:       cfg,
		cfgPath:   cfgPath,
		client:    client,
		feed:      venue.NewFeed(cfg.Venue.WSURL, signer, depthBook, logger),
		depthBook: depthBook,
		riskMgr: risk.NewManager(risk.Limits{
			MaxContractsPerMarket: cfg.Risk.MaxContractsPerMarket,
			MaxConcurrentMarkets:  cfg.Risk.MaxConcurrentMarkets,
			MaxTotalExposureCents: cfg.Risk.MaxTotalExposureCents,
		}),
		simulator: sim.New(sim.Config{
			LatencyMs:                cfg.Simulation.LatencyMs,
			TakerFillRate:            cfg.Simulation.TakerFillRate,
			MakerFillRate:            cfg.Simulation.MakerFillRate,
			SlipMean:                 cfg.Simulation.SlipMean,
			SlipStd:                  cfg.Simulation.SlipStd,
			MaxHoldSeconds:           cfg.Simulation.MaxHoldSeconds,
			MakerRequirePriceThrough: cfg.Simulation.MakerRequirePriceThrough,
		}, cfg.Simulation.Seed, cfg.Simulation.StartingBalanceCents),
		registry: venue.NewCancelRegistry(),
		bus:      state.NewBus(),
		metrics:  metrics,
		enabled:  make(map[string]bool),
		logger:   logger.With("component", "engine"),
	}
	e.balanceCents = cfg.Simulation.StartingBalanceCents

	for _, sportID := range cfg.SortedSportIDs() {
		sport := cfg.Sports[sportID]
		e.enabled[sportID] = sport.Enabled

		var odds pipeline.OddsFetcher
		if sport.OddsSource != "" {
			if srcCfg, ok := cfg.OddsSources[sport.OddsSource]; ok {
				odds = feed.NewOddsClient(sport.OddsSource, srcCfg, logger)
			}
		}

		var scores feed.ScoreProvider
		if sport.FairValue == "score-feed" && sport.ScoreFeed != nil {
			scores = feed.NewFailoverScores(
				feed.NewProviderA(*sport.ScoreFeed),
				feed.NewProviderB(*sport.ScoreFeed),
				sport.ScoreFeed.FailoverThreshold,
				logger,
			)
		}

		e.pipelines = append(e.pipelines, pipeline.New(sportID, cfg, odds, scores, loc, logger))
	}

	return e, nil
}

// Bus exposes the snapshot/command bus for the renderer.
func (e *Engine) Bus() *state.Bus { return e.bus }

// Run builds the market index, starts the order-book feed, and drives the
// scheduler until ctx is cancelled or a quit/kill command arrives.
func (e *Engine) Run(ctx context.Context) error {
	idx, err := index.Build(ctx, e.client, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("building market index: %w", err)
	}
	e.idx = idx
	e.logger.Info("market index ready", "games", idx.Len())

	if err := e.feed.Subscribe(idx.Tickers()); err != nil {
		e.logger.Warn("initial subscribe deferred until connect", "error", err)
	}
	if e.metrics != nil {
		e.feed.OnStatus(func(up bool) {
			if up {
				e.metrics.WSConnected.Set(1)
			} else {
				e.metrics.WSConnected.Set(0)
			}
		})
	}

	// A clean quit from the scheduler must also stop the feed, so the group
	// context is wrapped in an explicitly-cancellable one.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := e.feed.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer cancel()
		defer e.feed.Close()
		return e.schedule(ctx)
	})

	return g.Wait()
}

// schedule is the main loop: drain commands, run pipelines, advance the
// simulator, publish state, sleep until the next tick or an early wake.
func (e *Engine) schedule(ctx context.Context) error {
	tickInterval := e.cfg.Execution.TickInterval
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	nextTick := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if quit := e.drainCommands(); quit {
			return nil
		}

		if e.paused {
			e.publish(time.Now())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedSleep):
			}
			continue
		}

		now := time.Now()
		if !now.Before(nextTick) {
			e.runCycle(ctx, now)
			nextTick = now.Add(tickInterval)
		} else {
			// Propagation pass between cycles: refresh row quotes from the
			// depth book and give resting sim orders a fill opportunity.
			e.refreshRows()
			e.applySimEvents(e.simulator.Advance(now, e.quotes()))
		}

		e.publish(now)

		wait := time.Until(nextTick)
		if wait > propagateInterval {
			wait = propagateInterval
		}
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		case <-e.feed.Updates():
		}
	}
}

// runCycle executes one full scheduler iteration over every enabled
// pipeline.
func (e *Engine) runCycle(ctx context.Context, now time.Time) {
	started := time.Now()
	e.refreshBalance(ctx, now)

	ledger := risk.NewCycleLedger(e.balanceCents)
	rows := make([]state.MarketRow, 0, len(e.lastRows))
	diags := make([]state.DiagnosticRow, 0, len(e.pipelines))
	e.counts.live, e.counts.pregame, e.counts.closed = 0, 0, 0

	for _, p := range e.pipelines {
		if !e.enabled[p.SportID()] {
			continue
		}

		res := p.Tick(ctx, pipeline.TickInput{
			Now:      now,
			Index:    e.idx,
			Book:     e.depthBook,
			Risk:     e.riskMgr,
			Ledger:   ledger,
			Executor: e.executor(),
		})

		rows = append(rows, res.Rows...)
		e.counts.live += res.LiveGames
		e.counts.pregame += res.PregameGames
		e.counts.closed += res.ClosedGames
		diags = append(diags, state.DiagnosticRow{
			Sport:          p.SportID(),
			LastPoll:       res.PolledAt,
			CacheServed:    res.CacheServed,
			ActiveProvider: res.ActiveProvider,
			LiveGames:      res.LiveGames,
			PregameGames:   res.PregameGames,
			ClosedGames:    res.ClosedGames,
		})

		if !res.Quota.FetchedAt.IsZero() && res.Quota.Remaining > 0 {
			burn := res.Quota.BurnRatePerHour(res.PrevQuota)
			e.quota = state.QuotaStatus{
				Used:        res.Quota.Used,
				Remaining:   res.Quota.Remaining,
				BurnPerHour: burn,
				HoursLeft:   res.Quota.HoursLeft(burn),
			}
		}
		if res.RiskRejected > 0 {
			e.appendLog(fmt.Sprintf("%s: %d signals blocked by risk limits", p.SportID(), res.RiskRejected))
		}
		if res.CacheServed {
			e.appendLog(fmt.Sprintf("%s: poll failed, serving cached data", p.SportID()))
		}
	}

	e.lastRows = rows
	e.lastDiags = diags
	e.applySimEvents(e.simulator.Advance(now, e.quotes()))

	if e.metrics != nil {
		e.metrics.ObserveSim(e.simulator.Counters())
		e.metrics.ExposureCents.Set(float64(e.riskMgr.ExposureCents()))
		e.metrics.BalanceCents.Set(float64(e.balanceCents))
		e.metrics.TickDuration.Observe(time.Since(started).Seconds())
	}
}

// refreshBalance snaps the working balance to the authoritative source: a
// periodic venue poll in live mode, the simulated ledger otherwise.
func (e *Engine) refreshBalance(ctx context.Context, now time.Time) {
	if !e.cfg.Live {
		e.balanceCents = e.simulator.Balance()
		return
	}

	interval := e.cfg.Venue.BalancePollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if now.Sub(e.lastBalanceAt) < interval {
		return
	}
	e.lastBalanceAt = now

	bal, err := e.client.GetBalance(ctx)
	if err != nil {
		e.logger.Warn("balance poll failed, keeping last value", "error", err)
		e.appendLog("balance poll failed: " + err.Error())
		return
	}
	e.balanceCents = bal.BalanceCents
}

// applySimEvents folds simulator outcomes into risk state and the blotter.
func (e *Engine) applySimEvents(events []sim.Event) {
	for _, evt := range events {
		switch evt.Kind {
		case sim.EventEntryFilled:
			e.riskMgr.OnFill(evt.Ticker, evt.Quantity, evt.Price)
			e.addTrade("entry", evt)
		case sim.EventExitFilled:
			e.riskMgr.OnExit(evt.Ticker, evt.Quantity, evt.EntryPrice)
			e.addTrade("exit", evt)
		case sim.EventExitTimedOut:
			e.riskMgr.OnExit(evt.Ticker, evt.Quantity, evt.EntryPrice)
			e.addTrade("timeout_exit", evt)
		case sim.EventEntryMissed:
			e.addTrade("miss", evt)
		case sim.EventEntryRejected:
			e.addTrade("reject", evt)
			e.appendLog(fmt.Sprintf("%s: entry rejected by break-even guard", evt.Ticker))
		}
	}
}

func (e *Engine) addTrade(kind string, evt sim.Event) {
	e.trades = append(e.trades, state.TradeSummary{
		Time:     time.Now(),
		Ticker:   evt.Ticker,
		Kind:     kind,
		Price:    evt.Price,
		Quantity: evt.Quantity,
		PnL:      evt.PnL,
		Trace:    evt.Trace,
	})
	if len(e.trades) > maxTrades {
		e.trades = e.trades[len(e.trades)-maxTrades:]
	}
}

// refreshRows re-reads best bid/ask from the depth book for the last
// published rows without re-running pipelines.
func (e *Engine) refreshRows() {
	for i := range e.lastRows {
		row := &e.lastRows[i]
		if e.depthBook.Has(row.Ticker) {
			row.Bid, row.Ask = e.depthBook.BestBidAsk(row.Ticker)
		}
	}
}

// quotes adapts the depth book (with catalog fallback) for the simulator.
func (e *Engine) quotes() sim.QuoteFunc {
	return func(ticker string) (int, int) {
		if e.depthBook.Has(ticker) {
			return e.depthBook.BestBidAsk(ticker)
		}
		if e.idx != nil {
			if c, ok := e.idx.Contract(ticker); ok {
				return c.YesBid, c.YesAsk
			}
		}
		return 0, 0
	}
}

// executor selects the live order path or the fill simulator.
func (e *Engine) executor() pipeline.Executor {
	if e.cfg.Live {
		return &liveExecutor{engine: e}
	}
	return &simExecutor{sim: e.simulator}
}

type simExecutor struct{ sim *sim.Simulator }

func (x *simExecutor) Execute(now time.Time, sig types.Signal, trace types.SignalTrace) error {
	return x.sim.Submit(now, sig, trace)
}

// liveExecutor places real limit orders. Automated cancellation is a
// non-goal: placed orders are recorded in the cancel registry only.
type liveExecutor struct{ engine *Engine }

func (x *liveExecutor) Execute(now time.Time, sig types.Signal, trace types.SignalTrace) error {
	e := x.engine
	order, err := e.client.CreateOrder(context.Background(), venue.OrderRequest{
		Ticker:   trace.Ticker,
		Side:     "yes",
		Action:   "buy",
		Type:     "limit",
		Count:    sig.Quantity,
		YesPrice: sig.Price,
		ClientID: fmt.Sprintf("arb-%d", now.UnixMilli()),
	})
	if err != nil {
		return err
	}
	e.registry.Track(order.OrderID, trace.Ticker)
	e.riskMgr.OnFill(trace.Ticker, sig.Quantity, sig.Price)
	return nil
}

// drainCommands processes all queued TUI commands. Returns true on quit or
// kill switch.
func (e *Engine) drainCommands() bool {
	for {
		select {
		case cmd := <-e.bus.Commands():
			if e.handleCommand(cmd) {
				return true
			}
		default:
			return false
		}
	}
}

func (e *Engine) handleCommand(cmd state.Command) bool {
	switch cmd.Kind {
	case state.CmdPause:
		e.paused = true
		e.appendLog("paused")
	case state.CmdResume:
		e.paused = false
		e.appendLog("resumed")
	case state.CmdQuit:
		e.logger.Info("quit requested")
		return true
	case state.CmdKillSwitch:
		e.paused = true
		outstanding := e.registry.Outstanding()
		e.logger.Error("kill switch engaged",
			"outstanding_orders", len(outstanding),
		)
		e.appendLog(fmt.Sprintf("KILL SWITCH: %d orders left resting (manual cancel required)", len(outstanding)))
		e.publish(time.Now())
		return true
	case state.CmdToggleSport:
		next, err := config.ToggleSport(e.cfgPath, cmd.Sport)
		if err != nil {
			e.logger.Error("toggle sport failed", "sport", cmd.Sport, "error", err)
			e.appendLog("toggle failed: " + err.Error())
			return false
		}
		e.enabled[cmd.Sport] = next
		e.appendLog(fmt.Sprintf("%s %s", cmd.Sport, onOff(next)))
	case state.CmdUpdateConfig:
		if err := config.SetField(e.cfgPath, cmd.Key, cmd.Value); err != nil {
			e.logger.Error("config update failed", "key", cmd.Key, "error", err)
			e.appendLog("config update failed: " + err.Error())
			return false
		}
		e.appendLog(fmt.Sprintf("config: %s = %s (restart to apply)", cmd.Key, cmd.Value))
	case state.CmdFetchDiagnostic, state.CmdOpenConfig:
		// Renderer-side actions; nothing to do here.
	}
	return false
}

func (e *Engine) appendLog(line string) {
	e.logLines = append(e.logLines, time.Now().Format("15:04:05")+" "+line)
	if len(e.logLines) > maxLogLines {
		e.logLines = e.logLines[len(e.logLines)-maxLogLines:]
	}
}

// publish composes and emits the snapshot. The scheduler is the only caller.
func (e *Engine) publish(now time.Time) {
	counters := e.simulator.Counters()

	enabled := make(map[string]bool, len(e.enabled))
	for k, v := range e.enabled {
		enabled[k] = v
	}

	e.bus.Publish(state.Snapshot{
		Timestamp:     now,
		Paused:        e.paused,
		Live:          e.cfg.Live,
		WSConnected:   e.feed.Connected(),
		BalanceCents:  e.balanceCents,
		ExposureCents: e.riskMgr.ExposureCents(),
		RealizedCents: counters.RealizedPnLCents,
		SimCounters:   counters,
		Rows:          append([]state.MarketRow(nil), e.lastRows...),
		Positions:     e.simulator.Positions(),
		Trades:        append([]state.TradeSummary(nil), e.trades...),
		Logs:          append([]string(nil), e.logLines...),
		Diagnostics:   append([]state.DiagnosticRow(nil), e.lastDiags...),
		SportEnabled:  enabled,
		Quota:         e.quota,
		LiveGames:     e.counts.live,
		PregameGames:  e.counts.pregame,
		ClosedGames:   e.counts.closed,
	})
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
