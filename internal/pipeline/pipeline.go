// Package pipeline is the per-sport evaluation state machine.
//
// One Pipeline instance exists per configured sport. Each scheduler
// iteration calls Tick, which:
//
//  1. decides whether it is time to poll (live games poll on a short
//     cadence, pre-game on a long one), fetching or reusing the cached
//     response — a failed poll with a cache serves stale data and flags it;
//  2. matches every external event to an indexed venue game by
//     (sport, commence date in the market timezone, normalised team pair);
//  3. computes fair value — the win-probability model over the live score
//     for score-feed sports, devigged moneylines for odds-feed sports —
//     evaluating each existing side (home/away/draw) independently;
//  4. reads best bid/ask from the depth book, falling back to the index's
//     cached catalog prices until the book has data;
//  5. runs the strategy evaluator, the momentum gate, the risk checks, and
//     the per-cycle bankroll ledger, then hands surviving buys to the
//     executor (fill simulator or live order placement);
//  6. returns renderable rows, status counts, and diagnostics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brabsmit/kalshi-arb/internal/book"
	"github.com/brabsmit/kalshi-arb/internal/config"
	"github.com/brabsmit/kalshi-arb/internal/feed"
	"github.com/brabsmit/kalshi-arb/internal/fees"
	"github.com/brabsmit/kalshi-arb/internal/index"
	"github.com/brabsmit/kalshi-arb/internal/match"
	"github.com/brabsmit/kalshi-arb/internal/prob"
	"github.com/brabsmit/kalshi-arb/internal/risk"
	"github.com/brabsmit/kalshi-arb/internal/state"
	"github.com/brabsmit/kalshi-arb/internal/strategy"
	"github.com/brabsmit/kalshi-arb/internal/track"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// OddsFetcher is the slice of the odds client a pipeline consumes.
type OddsFetcher interface {
	Name() string
	Bookmaker() string
	GetEvents(ctx context.Context, sportKey string) ([]feed.OddsEvent, feed.Quota, error)
}

// Executor receives gated buy signals. The engine wires either the fill
// simulator or the live order path.
type Executor interface {
	Execute(now time.Time, sig types.Signal, trace types.SignalTrace) error
}

// TickInput carries the shared per-cycle collaborators into one Tick.
// The cycle ledger is the working bankroll: it starts each cycle at the live
// (or simulated) balance and is debited as entries are planned.
type TickInput struct {
	Now      time.Time
	Index    *index.Index
	Book     *book.Book
	Risk     *risk.Manager
	Ledger   *risk.CycleLedger
	Executor Executor
}

// TickResult aggregates one sport's cycle output.
type TickResult struct {
	Rows             []state.MarketRow
	LiveGames        int
	PregameGames     int
	ClosedGames      int
	EarliestCommence time.Time
	AnyLive          bool
	Quota            feed.Quota
	PrevQuota        feed.Quota
	CacheServed      bool
	PolledAt         time.Time
	ActiveProvider   string
	SkippedStale     int
	RiskRejected     int
}

// Pipeline owns one sport's polling state, caches, and trackers.
type Pipeline struct {
	sportID string
	cfg     config.SportConfig

	thresholds strategy.Thresholds
	momentum   track.MomentumConfig
	riskCfg    config.RiskConfig

	odds   OddsFetcher        // nil when the sport has no odds source
	scores feed.ScoreProvider // nil for odds-feed sports
	wp     prob.WinProbParams // score-feed sports
	loc    *time.Location     // market timezone for game dating

	pollLive       time.Duration
	pollPregame    time.Duration
	staleThreshold time.Duration
	depthBand      int

	velocity *track.VelocityTracker
	pressure *track.PressureTracker

	// polling state
	lastPollAt    time.Time
	lastSuccessAt time.Time
	cachedOdds    []feed.OddsEvent
	cachedScores  []feed.ScoreSnapshot
	lastQuota     feed.Quota
	prevQuota     feed.Quota
	anyLive       bool

	// per-event freshness for score-feed staleness gating
	lastScoreSeen map[string]time.Time

	logger *slog.Logger
}

// New builds a pipeline for one sport with resolved (global + override)
// strategy and momentum configs.
func New(sportID string, cfg *config.Config, odds OddsFetcher, scores feed.ScoreProvider, loc *time.Location, logger *slog.Logger) *Pipeline {
	sport := cfg.Sports[sportID]
	st := cfg.StrategyFor(sportID)
	mo := cfg.MomentumFor(sportID)

	wp := prob.DefaultBasketball()
	if sport.WinProb != nil {
		w := sport.WinProb
		wp = prob.WinProbParams{
			HomeAdvantage:     w.HomeAdvantage,
			KStart:            w.KStart,
			KRange:            w.KRange,
			RegulationSeconds: w.RegulationSeconds,
			OTKStart:          w.OTKStart,
			OTKRange:          w.OTKRange,
			OTSeconds:         w.OTSeconds,
		}
	}

	pollLive, pollPregame := 5*time.Second, time.Minute
	if odds != nil {
		if src, ok := cfg.OddsSources[sport.OddsSource]; ok {
			if src.LivePollInterval > 0 {
				pollLive = src.LivePollInterval
			}
			if src.PregamePollInterval > 0 {
				pollPregame = src.PregamePollInterval
			}
		}
	}

	return &Pipeline{
		sportID: sportID,
		cfg:     sport,
		thresholds: strategy.Thresholds{
			TakerEdge: st.TakerEdgeCents,
			MakerEdge: st.MakerEdgeCents,
			MinNet:    st.MinNetCents,
		},
		momentum: track.MomentumConfig{
			VelocityWeight: mo.VelocityWeight,
			BookWeight:     mo.BookWeight,
			TakerThreshold: mo.TakerThreshold,
			MakerThreshold: mo.MakerThreshold,
			Bypass:         mo.Bypass,
		},
		riskCfg:        cfg.Risk,
		odds:           odds,
		scores:         scores,
		wp:             wp,
		loc:            loc,
		pollLive:       pollLive,
		pollPregame:    pollPregame,
		staleThreshold: time.Duration(cfg.Execution.StaleOddsThresholdSecs) * time.Second,
		depthBand:      mo.DepthBandCents,
		velocity:       track.NewVelocityTracker(mo.VelocityWindow, mo.VelocityScale),
		pressure:       track.NewPressureTracker(mo.PressureWindow, mo.PressureScale),
		lastScoreSeen:  make(map[string]time.Time),
		logger:         logger.With("component", "pipeline", "sport", sportID),
	}
}

// SportID returns the configured sport identifier.
func (p *Pipeline) SportID() string { return p.sportID }

// Tick runs one evaluation cycle for this sport.
func (p *Pipeline) Tick(ctx context.Context, in TickInput) TickResult {
	res := TickResult{
		PolledAt:  p.lastSuccessAt,
		Quota:     p.lastQuota,
		PrevQuota: p.prevQuota,
	}
	if p.scores != nil {
		res.ActiveProvider = p.scores.Name()
	} else if p.odds != nil {
		res.ActiveProvider = p.odds.Name()
	}

	p.refresh(ctx, in.Now, &res)

	if p.cfg.FairValue == "score-feed" {
		p.tickScores(in, &res)
	} else {
		p.tickOdds(in, &res)
	}

	p.anyLive = res.AnyLive
	res.Quota = p.lastQuota
	res.PrevQuota = p.prevQuota
	res.PolledAt = p.lastSuccessAt
	return res
}

// refresh polls the upstream feed when the cadence says so, falling back to
// the cached response on failure.
func (p *Pipeline) refresh(ctx context.Context, now time.Time, res *TickResult) {
	interval := p.pollPregame
	if p.anyLive {
		interval = p.pollLive
	}
	if !p.lastPollAt.IsZero() && now.Sub(p.lastPollAt) < interval {
		return
	}
	p.lastPollAt = now

	if p.cfg.FairValue == "score-feed" {
		if p.scores == nil {
			return
		}
		snaps, err := p.scores.Fetch(ctx)
		if err != nil {
			p.logger.Warn("score poll failed, serving cache", "error", err)
			res.CacheServed = true
			return
		}
		p.cachedScores = snaps
		p.lastSuccessAt = now
		for _, s := range snaps {
			p.lastScoreSeen[s.EventID] = now
		}
		return
	}

	if p.odds == nil {
		return
	}
	events, quota, err := p.odds.GetEvents(ctx, p.cfg.OddsSportKey)
	if err != nil {
		p.logger.Warn("odds poll failed, serving cache", "error", err)
		res.CacheServed = true
		return
	}
	p.cachedOdds = events
	p.prevQuota = p.lastQuota
	p.lastQuota = quota
	p.lastSuccessAt = now
}

// ————————————————————————————————————————————————————————————————————————
// Odds-feed evaluation
// ————————————————————————————————————————————————————————————————————————

func (p *Pipeline) tickOdds(in TickInput, res *TickResult) {
	for _, evt := range p.cachedOdds {
		if evt.CommenceTime.After(in.Now) {
			res.PregameGames++
		} else {
			res.LiveGames++
			res.AnyLive = true
		}
		if res.EarliestCommence.IsZero() || evt.CommenceTime.Before(res.EarliestCommence) {
			res.EarliestCommence = evt.CommenceTime
		}

		game, ok := p.lookupGame(in.Index, evt.AwayTeam, evt.HomeTeam, evt.CommenceTime)
		if !ok {
			continue
		}

		home, away, draw, hasDraw, ok := evt.Moneyline(p.oddsBookmaker())
		if !ok {
			continue
		}

		staleness := int(in.Now.Sub(p.lastSuccessAt).Seconds())

		if p.cfg.ThreeWay && hasDraw {
			ph, pa, pd := prob.Devig3Way(home, away, draw)
			p.evalSide(in, res, game.Home, evt, ph, home, away, draw, staleness)
			p.evalSide(in, res, game.Away, evt, pa, home, away, draw, staleness)
			p.evalSide(in, res, game.Draw, evt, pd, home, away, draw, staleness)
		} else {
			ph, pa := prob.Devig2Way(home, away)
			p.evalSide(in, res, game.Home, evt, ph, home, away, 0, staleness)
			p.evalSide(in, res, game.Away, evt, pa, home, away, 0, staleness)
		}
	}
}

// evalSide evaluates one contract side of an odds-feed game.
func (p *Pipeline) evalSide(in TickInput, res *TickResult, contract *types.Contract, evt feed.OddsEvent, devigged float64, homeML, awayML, drawML float64, staleness int) {
	if contract == nil {
		return
	}

	fair := prob.FairValueCents(devigged)
	velScore := p.velocity.Observe(contract.Ticker, in.Now, devigged)

	trace := types.SignalTrace{
		Sport:     p.sportID,
		Ticker:    contract.Ticker,
		Timestamp: in.Now,
		Method:    types.MethodOddsFeed,
		Source:    p.oddsSourceName(),
		Fair:      fair,
		Odds: &types.OddsInputs{
			Bookmaker:    p.oddsBookmaker(),
			HomeAmerican: homeML,
			AwayAmerican: awayML,
			DrawAmerican: drawML,
			Devigged:     devigged,
		},
	}

	p.decide(in, res, contract, fair, velScore, staleness, gameLabel(evt.AwayTeam, evt.HomeTeam), trace)
}

// ————————————————————————————————————————————————————————————————————————
// Score-feed evaluation
// ————————————————————————————————————————————————————————————————————————

func (p *Pipeline) tickScores(in TickInput, res *TickResult) {
	for _, snap := range p.cachedScores {
		switch snap.Status {
		case types.StatusFinished:
			res.ClosedGames++
			continue
		case types.StatusPreGame:
			res.PregameGames++
			if res.EarliestCommence.IsZero() || (!snap.CommenceTime.IsZero() && snap.CommenceTime.Before(res.EarliestCommence)) {
				res.EarliestCommence = snap.CommenceTime
			}
			continue
		}

		res.LiveGames++
		res.AnyLive = true

		game, ok := p.lookupGame(in.Index, snap.AwayTeam, snap.HomeTeam, in.Now)
		if !ok {
			continue
		}

		staleness := int(in.Now.Sub(p.lastScoreSeen[snap.EventID]).Seconds())
		homeFair, awayFair := p.wp.FairValue(snap.HomeScore-snap.AwayScore, snap.ElapsedSeconds)

		p.evalScoreSide(in, res, game.Home, snap, homeFair, staleness)
		p.evalScoreSide(in, res, game.Away, snap, awayFair, staleness)
	}
}

func (p *Pipeline) evalScoreSide(in TickInput, res *TickResult, contract *types.Contract, snap feed.ScoreSnapshot, fair, staleness int) {
	if contract == nil {
		return
	}

	trace := types.SignalTrace{
		Sport:     p.sportID,
		Ticker:    contract.Ticker,
		Timestamp: in.Now,
		Method:    types.MethodScoreFeed,
		Source:    p.scores.Name(),
		Fair:      fair,
		Score: &types.ScoreInputs{
			HomeScore:      snap.HomeScore,
			AwayScore:      snap.AwayScore,
			Period:         snap.Period,
			ElapsedSeconds: snap.ElapsedSeconds,
		},
	}

	// Stale scores are forced to Skip before any evaluation.
	if p.staleThreshold > 0 && staleness > int(p.staleThreshold.Seconds()) {
		res.SkippedStale++
		bid, ask := p.quote(in, contract)
		res.Rows = append(res.Rows, state.MarketRow{
			Sport:        p.sportID,
			Ticker:       contract.Ticker,
			Game:         gameLabel(snap.AwayTeam, snap.HomeTeam),
			Fair:         fair,
			Bid:          bid,
			Ask:          ask,
			Action:       types.ActionSkip,
			StalenessSec: staleness,
		})
		return
	}

	velScore := p.velocity.Observe(contract.Ticker, in.Now, float64(fair)/100.0)
	p.decide(in, res, contract, fair, velScore, staleness, gameLabel(snap.AwayTeam, snap.HomeTeam), trace)
}

// ————————————————————————————————————————————————————————————————————————
// Shared decision path
// ————————————————————————————————————————————————————————————————————————

// decide runs strategy → momentum gate → risk → executor for one contract
// and appends the market row.
func (p *Pipeline) decide(in TickInput, res *TickResult, contract *types.Contract, fair, velScore, staleness int, label string, trace types.SignalTrace) {
	bid, ask := p.quote(in, contract)

	bidDepth, askDepth := in.Book.NearTouchDepth(contract.Ticker, p.depthBand)
	bookScore := p.pressure.Observe(contract.Ticker, in.Now, bidDepth, askDepth)
	momentum := p.momentum.Composite(velScore, bookScore)

	sig := strategy.Evaluate(strategy.Inputs{
		Fair:          fair,
		Bid:           bid,
		Ask:           ask,
		BankrollCents: in.Ledger.Available(),
		KellyFraction: p.riskCfg.KellyFraction,
		MaxContracts:  p.riskCfg.MaxContractsPerMarket,
	}, p.thresholds)

	gatedSig, gated := p.momentum.Gate(sig, momentum)

	trace.BestBid = bid
	trace.BestAsk = ask
	trace.Edge = gatedSig.Edge
	trace.Action = gatedSig.Action
	trace.EstNet = gatedSig.EstNet
	trace.Quantity = gatedSig.Quantity
	trace.Momentum = momentum
	trace.Gated = gated

	if gatedSig.Action != types.ActionSkip {
		if err := p.clearRisk(in, contract.Ticker, gatedSig); err != nil {
			p.logger.Info("entry blocked", "ticker", contract.Ticker, "reason", err)
			res.RiskRejected++
			gatedSig = types.Signal{Action: types.ActionSkip, Edge: gatedSig.Edge}
			trace.Action = types.ActionSkip
		} else if err := in.Executor.Execute(in.Now, gatedSig, trace); err != nil {
			p.logger.Warn("execute failed", "ticker", contract.Ticker, "error", err)
			gatedSig = types.Signal{Action: types.ActionSkip, Edge: gatedSig.Edge}
			trace.Action = types.ActionSkip
		}
	}

	res.Rows = append(res.Rows, state.MarketRow{
		Sport:        p.sportID,
		Ticker:       contract.Ticker,
		Game:         label,
		Fair:         fair,
		Bid:          bid,
		Ask:          ask,
		Edge:         gatedSig.Edge,
		Action:       gatedSig.Action,
		Momentum:     momentum,
		StalenessSec: staleness,
		LatencyMs:    int(time.Since(in.Now).Milliseconds()),
	})
}

// clearRisk applies the hard caps and the per-cycle bankroll ledger.
func (p *Pipeline) clearRisk(in TickInput, ticker string, sig types.Signal) error {
	if err := in.Risk.CheckEntry(ticker, sig.Quantity, sig.Price); err != nil {
		return err
	}
	cost := sig.Price*sig.Quantity + fees.Taker(sig.Price, sig.Quantity)
	if !in.Ledger.Reserve(cost) {
		return fmt.Errorf("insufficient cycle bankroll: need %d, have %d", cost, in.Ledger.Available())
	}
	return nil
}

// quote reads the depth book, falling back to the catalog's cached prices
// until the WebSocket has populated this ticker.
func (p *Pipeline) quote(in TickInput, contract *types.Contract) (bid, ask int) {
	if in.Book != nil && in.Book.Has(contract.Ticker) {
		return in.Book.BestBidAsk(contract.Ticker)
	}
	return contract.YesBid, contract.YesAsk
}

func (p *Pipeline) lookupGame(idx *index.Index, awayName, homeName string, commence time.Time) (*index.Game, bool) {
	away, home := awayName, homeName
	if p.cfg.MMA {
		away = match.LastName(away)
		home = match.LastName(home)
	}
	date := commence.In(p.loc).Format("2006-01-02")
	return idx.Lookup(match.GenerateKey(p.sportID, date, away, home))
}

func (p *Pipeline) oddsSourceName() string {
	if p.odds == nil {
		return ""
	}
	return p.odds.Name()
}

func (p *Pipeline) oddsBookmaker() string {
	if p.odds == nil {
		return ""
	}
	return p.odds.Bookmaker()
}

func gameLabel(away, home string) string {
	return away + " @ " + home
}
