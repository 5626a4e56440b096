package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	applogger "BasisPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Binance combined trade
// stream. One connection carries every configured symbol.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new Binance MarketStream.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         log,
	}
}

// Connect dials the combined stream endpoint with every symbol's trade
// stream in the path, so no separate subscribe frame is required.
func (c *Client) Connect(ctx context.Context) error {
	streams := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	u := fmt.Sprintf("%s/stream?streams=%s", c.websocketURL, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("binance stream connected", applogger.Int("symbols", len(c.symbols)))
	return nil
}

// Subscribe sends an explicit SUBSCRIBE frame. The combined endpoint
// already subscribes via the URL, so this doubles as a liveness check.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("binance not connected")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@trade")
	}
	msg := map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// current returns the live connection, or nil when disconnected.
func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

type binanceTrade struct {
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTS  int64  `json:"T"` // ms
}

type binanceFrame struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

// Read streams Tick events and errors from the connection that is live
// when Read is called. Both channels close when that connection dies;
// the caller reconnects and calls Read again for the replacement.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	conn := c.current()
	done := make(chan struct{})

	// Ping loop, pinned to this connection so a reconnect cannot leave
	// it poking a stale socket.
	go func() {
		if conn == nil {
			return
		}
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PongMessage, nil)
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("binance conn nil")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance read: %w", err)
				return
			}
			var f binanceFrame
			if err := json.Unmarshal(b, &f); err != nil {
				// ignore non-trade frames
				continue
			}
			if !strings.HasSuffix(f.Stream, "@trade") {
				continue
			}
			tick, err := f.Data.toTick()
			if err != nil {
				continue
			}
			select {
			case ticks <- tick:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

func (t binanceTrade) toTick() (*models.Tick, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, err
	}
	qty, _ := strconv.ParseFloat(t.Quantity, 64)
	return &models.Tick{
		Symbol:    t.Symbol,
		Price:     price,
		Volume:    qty,
		Timestamp: t.TradeTS / 1000,
	}, nil
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
