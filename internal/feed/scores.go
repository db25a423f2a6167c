// scores.go implements the two live-score providers and the sticky failover
// between them.
//
// Provider A reports gameStatus ∈ {1, 2, 3} and an ISO-8601 clock
// ("PT5M30S"); provider B reports a status id and a display clock
// ("5:30.0"). Both normalise to ScoreSnapshot. After a configurable run of
// consecutive primary failures the feed switches to the secondary and stays
// there — recovery requires a configuration reload or restart, which keeps
// the logic observable and avoids flapping.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/brabsmit/kalshi-arb/internal/config"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

// ScoreSnapshot is the normalised live state of one fixture.
type ScoreSnapshot struct {
	EventID        string
	HomeTeam       string
	AwayTeam       string
	HomeScore      int
	AwayScore      int
	Period         int
	ClockSeconds   int
	Status         types.GameStatus
	ElapsedSeconds int
	CommenceTime   time.Time
}

// ScoreProvider fetches the current scoreboard.
type ScoreProvider interface {
	Name() string
	Fetch(ctx context.Context) ([]ScoreSnapshot, error)
}

// ClockGeometry describes a sport's period structure for elapsed-seconds
// arithmetic.
type ClockGeometry struct {
	PeriodSeconds     int // regulation period length
	RegulationPeriods int
	OvertimeSeconds   int
}

// Elapsed converts (period, clock-seconds-remaining) to seconds elapsed
// since tip-off. Regulation: (period−1)·periodS + (periodS − clock).
// Overtime: regulationTotal + (otIndex−1)·otS + (otS − clock).
func (g ClockGeometry) Elapsed(period, clockSeconds int) int {
	if period <= 0 {
		return 0
	}
	if period <= g.RegulationPeriods {
		return (period-1)*g.PeriodSeconds + (g.PeriodSeconds - clockSeconds)
	}
	regTotal := g.RegulationPeriods * g.PeriodSeconds
	otIndex := period - g.RegulationPeriods
	return regTotal + (otIndex-1)*g.OvertimeSeconds + (g.OvertimeSeconds - clockSeconds)
}

// ParseISOClock parses "PT<m>M<s>S" into seconds remaining ("PT5M30S" → 330).
func ParseISOClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	rest, ok := strings.CutPrefix(s, "PT")
	if !ok {
		return 0, fmt.Errorf("clock %q: missing PT prefix", s)
	}

	minutes, seconds := 0.0, 0.0
	if mPart, after, found := strings.Cut(rest, "M"); found {
		m, err := strconv.ParseFloat(mPart, 64)
		if err != nil {
			return 0, fmt.Errorf("clock %q: %w", s, err)
		}
		minutes = m
		rest = after
	}
	if sPart, ok := strings.CutSuffix(rest, "S"); ok && sPart != "" {
		sec, err := strconv.ParseFloat(sPart, 64)
		if err != nil {
			return 0, fmt.Errorf("clock %q: %w", s, err)
		}
		seconds = sec
	}
	return int(minutes)*60 + int(seconds), nil
}

// ParseDisplayClock parses "M:SS" or "M:SS.f" into seconds remaining.
func ParseDisplayClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	mPart, sPart, found := strings.Cut(s, ":")
	if !found {
		return 0, fmt.Errorf("clock %q: want M:SS", s)
	}
	m, err := strconv.Atoi(mPart)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(sPart, 64)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return m*60 + int(sec), nil
}

// ————————————————————————————————————————————————————————————————————————
// Provider A
// ————————————————————————————————————————————————————————————————————————

type providerAGame struct {
	GameID     string `json:"gameId"`
	GameStatus int    `json:"gameStatus"` // 1 pregame, 2 live, 3 final
	Period     int    `json:"period"`
	GameClock  string `json:"gameClock"` // "PT05M30S"
	GameTime   string `json:"gameTimeUTC"`
	HomeTeam   struct {
		Name  string `json:"teamName"`
		Score int    `json:"score"`
	} `json:"homeTeam"`
	AwayTeam struct {
		Name  string `json:"teamName"`
		Score int    `json:"score"`
	} `json:"awayTeam"`
}

type providerAResponse struct {
	Games []providerAGame `json:"games"`
}

// ProviderA is the primary score source.
type ProviderA struct {
	http *resty.Client
	geom ClockGeometry
}

// NewProviderA builds the primary provider from a score-feed config.
func NewProviderA(cfg config.ScoreFeedConfig) *ProviderA {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ProviderA{
		http: resty.New().SetBaseURL(cfg.PrimaryURL).SetTimeout(timeout),
		geom: ClockGeometry{
			PeriodSeconds:     cfg.PeriodSeconds,
			RegulationPeriods: cfg.RegulationPeriods,
			OvertimeSeconds:   cfg.OvertimeSeconds,
		},
	}
}

func (p *ProviderA) Name() string { return "provider-a" }

// Fetch retrieves and normalises today's scoreboard.
func (p *ProviderA) Fetch(ctx context.Context) ([]ScoreSnapshot, error) {
	var body providerAResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/scoreboard")
	if err != nil {
		return nil, fmt.Errorf("provider-a fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("provider-a fetch: status %d", resp.StatusCode())
	}

	out := make([]ScoreSnapshot, 0, len(body.Games))
	for _, g := range body.Games {
		clock, err := ParseISOClock(g.GameClock)
		if err != nil {
			clock = 0
		}
		snap := ScoreSnapshot{
			EventID:      g.GameID,
			HomeTeam:     g.HomeTeam.Name,
			AwayTeam:     g.AwayTeam.Name,
			HomeScore:    g.HomeTeam.Score,
			AwayScore:    g.AwayTeam.Score,
			Period:       g.Period,
			ClockSeconds: clock,
			Status:       providerAStatus(g, clock, p.geom),
		}
		if t, err := time.Parse(time.RFC3339, g.GameTime); err == nil {
			snap.CommenceTime = t
		}
		if snap.Status == types.StatusLive || snap.Status == types.StatusHalftime {
			snap.ElapsedSeconds = p.geom.Elapsed(g.Period, clock)
		}
		out = append(out, snap)
	}
	return out, nil
}

func providerAStatus(g providerAGame, clock int, geom ClockGeometry) types.GameStatus {
	switch g.GameStatus {
	case 1:
		return types.StatusPreGame
	case 3:
		return types.StatusFinished
	case 2:
		if clock == 0 && g.Period == geom.RegulationPeriods/2 {
			return types.StatusHalftime
		}
		return types.StatusLive
	default:
		return types.StatusPreGame
	}
}

// ————————————————————————————————————————————————————————————————————————
// Provider B
// ————————————————————————————————————————————————————————————————————————

type providerBEvent struct {
	ID       string `json:"id"`
	StatusID int    `json:"status_id"` // 1 pregame, 2 live, 3 halftime, 4 final
	Period   int    `json:"period"`
	Clock    string `json:"clock"` // "5:30.0"
	Date     string `json:"date"`
	Home     struct {
		Name   string `json:"name"`
		Points int    `json:"points"`
	} `json:"home"`
	Away struct {
		Name   string `json:"name"`
		Points int    `json:"points"`
	} `json:"away"`
}

type providerBResponse struct {
	Events []providerBEvent `json:"events"`
}

// ProviderB is the secondary score source.
type ProviderB struct {
	http *resty.Client
	geom ClockGeometry
}

// NewProviderB builds the secondary provider from a score-feed config.
func NewProviderB(cfg config.ScoreFeedConfig) *ProviderB {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ProviderB{
		http: resty.New().SetBaseURL(cfg.SecondaryURL).SetTimeout(timeout),
		geom: ClockGeometry{
			PeriodSeconds:     cfg.PeriodSeconds,
			RegulationPeriods: cfg.RegulationPeriods,
			OvertimeSeconds:   cfg.OvertimeSeconds,
		},
	}
}

func (p *ProviderB) Name() string { return "provider-b" }

// Fetch retrieves and normalises the scoreboard.
func (p *ProviderB) Fetch(ctx context.Context) ([]ScoreSnapshot, error) {
	var body providerBResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("provider-b fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("provider-b fetch: status %d", resp.StatusCode())
	}

	out := make([]ScoreSnapshot, 0, len(body.Events))
	for _, e := range body.Events {
		clock, err := ParseDisplayClock(e.Clock)
		if err != nil {
			clock = 0
		}
		snap := ScoreSnapshot{
			EventID:      e.ID,
			HomeTeam:     e.Home.Name,
			AwayTeam:     e.Away.Name,
			HomeScore:    e.Home.Points,
			AwayScore:    e.Away.Points,
			Period:       e.Period,
			ClockSeconds: clock,
			Status:       providerBStatus(e.StatusID),
		}
		if t, err := time.Parse(time.RFC3339, e.Date); err == nil {
			snap.CommenceTime = t
		}
		if snap.Status == types.StatusLive || snap.Status == types.StatusHalftime {
			snap.ElapsedSeconds = p.geom.Elapsed(e.Period, clock)
		}
		out = append(out, snap)
	}
	return out, nil
}

func providerBStatus(id int) types.GameStatus {
	switch id {
	case 1:
		return types.StatusPreGame
	case 2:
		return types.StatusLive
	case 3:
		return types.StatusHalftime
	case 4:
		return types.StatusFinished
	default:
		return types.StatusPreGame
	}
}

// ————————————————————————————————————————————————————————————————————————
// Failover
// ————————————————————————————————————————————————————————————————————————

// FailoverScores wraps a primary and secondary provider. The switch is
// one-way within a process lifetime.
type FailoverScores struct {
	primary         ScoreProvider
	secondary       ScoreProvider
	threshold       int
	failures        int
	secondaryActive bool
	logger          *slog.Logger
}

// NewFailoverScores wires the failover pair.
func NewFailoverScores(primary, secondary ScoreProvider, threshold int, logger *slog.Logger) *FailoverScores {
	if threshold <= 0 {
		threshold = 3
	}
	return &FailoverScores{
		primary:   primary,
		secondary: secondary,
		threshold: threshold,
		logger:    logger.With("component", "scores"),
	}
}

// Name reports the currently active provider.
func (f *FailoverScores) Name() string {
	if f.secondaryActive {
		return f.secondary.Name()
	}
	return f.primary.Name()
}

// Fetch queries the active provider, counting consecutive primary failures
// toward the failover threshold.
func (f *FailoverScores) Fetch(ctx context.Context) ([]ScoreSnapshot, error) {
	if f.secondaryActive {
		return f.secondary.Fetch(ctx)
	}

	snaps, err := f.primary.Fetch(ctx)
	if err == nil {
		f.failures = 0
		return snaps, nil
	}

	f.failures++
	if f.failures >= f.threshold {
		f.secondaryActive = true
		f.logger.Warn("score feed failing over to secondary",
			"primary", f.primary.Name(),
			"consecutive_failures", f.failures,
		)
		return f.secondary.Fetch(ctx)
	}
	return nil, err
}
