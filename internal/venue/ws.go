// ws.go maintains the venue WebSocket order-book feed.
//
// One connection subscribes to the orderbook_delta channel for all indexed
// tickers (chunked, at most 50 tickers per subscribe command) and applies
// snapshot/delta messages to the shared depth book. A sequence gap drops
// local book state and resubscribes from scratch. Disconnects reconnect with
// exponential backoff (1s → 30s max); a read deadline detects silent server
// failures.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brabsmit/kalshi-arb/internal/book"
	"github.com/brabsmit/kalshi-arb/pkg/types"
)

const (
	maxTickersPerSubscribe = 50
	readTimeout            = 30 * time.Second
	writeTimeout           = 10 * time.Second
	maxReconnectWait       = 30 * time.Second
)

// Feed owns the WebSocket connection and writes into the depth book.
type Feed struct {
	url    string
	signer Signer
	book   *book.Book
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	cmdID int

	// updates receives one token per applied book message so the scheduler
	// can wake before its tick interval. Capacity one: coalesces bursts.
	updates chan struct{}

	// connected reports connection status changes to the state bus.
	statusMu  sync.Mutex
	connected bool
	onStatus  func(connected bool)
}

// NewFeed creates a feed writing into the given depth book. The signer may
// be nil when the venue accepts unauthenticated market-data connections.
func NewFeed(wsURL string, signer Signer, b *book.Book, logger *slog.Logger) *Feed {
	return &Feed{
		url:        wsURL,
		signer:     signer,
		book:       b,
		logger:     logger.With("component", "ws"),
		subscribed: make(map[string]bool),
		updates:    make(chan struct{}, 1),
	}
}

// Updates returns a channel that receives a token after book messages apply.
func (f *Feed) Updates() <-chan struct{} { return f.updates }

// OnStatus registers a connection-status callback (single consumer).
func (f *Feed) OnStatus(fn func(connected bool)) { f.onStatus = fn }

// Connected reports the current connection state.
func (f *Feed) Connected() bool {
	f.statusMu.Lock()
	defer f.statusMu.Unlock()
	return f.connected
}

// Subscribe tracks tickers and, when connected, sends subscribe commands in
// chunks of at most 50 tickers.
func (f *Feed) Subscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	f.subscribedMu.Unlock()

	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn == nil {
		// Not connected yet; tickers are tracked and subscribed on connect.
		return nil
	}
	return f.sendSubscribe(tickers)
}

// Run connects and maintains the feed until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close tears down the connection.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	var headers map[string][]string
	if f.signer != nil {
		signed, err := f.signer.Headers("GET", wsPathFromURL(f.url))
		if err != nil {
			return fmt.Errorf("ws auth: %w", err)
		}
		headers = make(map[string][]string, len(signed))
		for k, v := range signed {
			headers[k] = []string{v}
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, headers)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	// Ping frames get a pong through gorilla's default handler; refreshing
	// the read deadline keeps a quiet-but-alive connection open.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	// Fresh connection: the old sequence numbering is void.
	f.book.Reset()
	f.setConnected(true)
	f.logger.Info("websocket connected")

	if tickers := f.subscribedList(); len(tickers) > 0 {
		if err := f.sendSubscribe(tickers); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if err := f.handleMessage(msg); err != nil {
			f.logger.Warn("sequence gap, resubscribing", "error", err)
			f.book.Reset()
			if err := f.sendSubscribe(f.subscribedList()); err != nil {
				return fmt.Errorf("resubscribe: %w", err)
			}
		}
	}
}

func (f *Feed) handleMessage(data []byte) error {
	var env types.WSEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug("ignoring non-json ws message")
		return nil
	}

	switch env.Type {
	case "orderbook_snapshot":
		var snap types.WSOrderbookSnapshot
		if err := json.Unmarshal(env.Msg, &snap); err != nil {
			f.logger.Error("unmarshal orderbook snapshot", "error", err)
			return nil
		}
		f.book.ApplySnapshot(snap, env.Seq, time.Now())
		f.notifyUpdate()

	case "orderbook_delta":
		var delta types.WSOrderbookDelta
		if err := json.Unmarshal(env.Msg, &delta); err != nil {
			f.logger.Error("unmarshal orderbook delta", "error", err)
			return nil
		}
		if err := f.book.ApplyDelta(delta, env.Seq, time.Now()); err != nil {
			return err
		}
		f.notifyUpdate()

	case "error":
		var werr types.WSError
		if err := json.Unmarshal(env.Msg, &werr); err == nil {
			f.logger.Error("venue ws error", "code", werr.Code, "msg", werr.Msg)
		}

	case "subscribed", "ok":
		// Acknowledgements need no handling.

	default:
		f.logger.Debug("unhandled ws message", "type", env.Type)
	}
	return nil
}

func (f *Feed) notifyUpdate() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func (f *Feed) sendSubscribe(tickers []string) error {
	for start := 0; start < len(tickers); start += maxTickersPerSubscribe {
		end := start + maxTickersPerSubscribe
		if end > len(tickers) {
			end = len(tickers)
		}
		f.cmdID++
		cmd := types.WSCommand{
			ID:  f.cmdID,
			Cmd: "subscribe",
			Params: types.WSParams{
				Channels:      []string{"orderbook_delta"},
				MarketTickers: tickers[start:end],
			},
		}
		if err := f.writeJSON(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) subscribedList() []string {
	f.subscribedMu.RLock()
	defer f.subscribedMu.RUnlock()
	out := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		out = append(out, t)
	}
	return out
}

func (f *Feed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) setConnected(up bool) {
	f.statusMu.Lock()
	changed := f.connected != up
	f.connected = up
	f.statusMu.Unlock()
	if changed && f.onStatus != nil {
		f.onStatus(up)
	}
}

// wsPathFromURL extracts the path component for signature computation.
func wsPathFromURL(wsURL string) string {
	for i := 0; i < len(wsURL); i++ {
		if wsURL[i] == '/' && i+1 < len(wsURL) && wsURL[i+1] == '/' {
			rest := wsURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rest[j:]
				}
			}
			return "/"
		}
	}
	return wsURL
}
