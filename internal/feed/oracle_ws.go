// Package feed supplies oracle price ticks to the market model and the
// price cache, either from a live websocket oracle or a simulated generator.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// PriceTick is one oracle price observation.
type PriceTick struct {
	Asset string    `json:"asset"`
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}

// TickHandler is called for each price tick received from the feed.
type TickHandler func(ctx context.Context, tick PriceTick)

// tickMessage is the wire format of an oracle price update.
type tickMessage struct {
	Type    string  `json:"type"`
	Asset   string  `json:"asset"`
	Price   float64 `json:"price"`
	TSMilli int64   `json:"ts"`
}

// subscribeCommand asks the oracle to stream prices for a set of assets.
type subscribeCommand struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
}

// OracleWSFeed connects to an oracle price websocket, subscribes to the given
// assets, and invokes the handler on each tick. It reconnects with
// exponential backoff on disconnect.
type OracleWSFeed struct {
	wsURL     string
	assets    []string
	onTick    TickHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewOracleWSFeed creates a feed that will subscribe to the given assets.
func NewOracleWSFeed(wsURL string, assets []string, onTick TickHandler, logger *slog.Logger) *OracleWSFeed {
	return &OracleWSFeed{
		wsURL:  wsURL,
		assets: assets,
		onTick: onTick,
		logger: logger.With(slog.String("component", "oracle_ws_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects, subscribes, and processes ticks until ctx is cancelled or
// Close is called. Disconnects trigger reconnection with backoff.
func (f *OracleWSFeed) Run(ctx context.Context) error {
	if len(f.assets) == 0 {
		f.logger.Info("no assets to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("oracle ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection handles one websocket session: dial, subscribe, read until
// the connection drops or the feed is stopped.
func (f *OracleWSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect oracle ws: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.Info("oracle ws subscribed", slog.Int("assets", len(f.assets)))

	// Close the connection when the caller goes away so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}()

	go f.pingLoop(conn, stop)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read oracle ws: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *OracleWSFeed) subscribe(conn *websocket.Conn) error {
	cmd := subscribeCommand{Type: "subscribe", Assets: f.assets}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

func (f *OracleWSFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and dispatches price ticks. Unparseable
// or non-price messages are silently dropped.
func (f *OracleWSFeed) handleMessage(ctx context.Context, raw []byte) {
	var msg tickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Type != "price" || msg.Asset == "" || msg.Price <= 0 {
		return
	}

	tick := PriceTick{
		Asset: msg.Asset,
		Price: msg.Price,
		TS:    time.UnixMilli(msg.TSMilli),
	}
	if msg.TSMilli == 0 {
		tick.TS = time.Now()
	}

	if f.onTick != nil {
		f.onTick(ctx, tick)
	}
}

// Close stops the feed.
func (f *OracleWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
