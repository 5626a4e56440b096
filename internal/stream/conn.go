package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"BasisPulse/internal/domain/models"
	applogger "BasisPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Connection lifecycle states.
const (
	StateConnecting int32 = iota
	StateOpen
	StateSubscribed
	StateClosed
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 64
)

var connSeq uint64

// IndicatorSource supplies the latest indicator snapshots for a symbol,
// used to answer get_current_indicators requests.
type IndicatorSource interface {
	CurrentSnapshots(symbol string) []models.IndicatorSnapshot
}

// Conn is one downstream WebSocket client. Its state machine is driven
// by transport events: Connecting until the hello is sent, Open while
// idle, Subscribed once it follows at least one symbol, Closed after
// either side goes away.
type Conn struct {
	id         string
	ws         *websocket.Conn
	hub        *Hub
	indicators IndicatorSource
	supported  []string
	logger     *applogger.Logger

	state   int32
	sendCh  chan *models.OutboundMessage
	done    chan struct{}
	mu      sync.Mutex
	symbols map[string]struct{} // currently subscribed
	once    sync.Once
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn, hub *Hub, indicators IndicatorSource, supported []string, log *applogger.Logger) *Conn {
	return &Conn{
		id:         fmt.Sprintf("conn-%d-%d", time.Now().UnixNano(), atomic.AddUint64(&connSeq, 1)),
		ws:         ws,
		hub:        hub,
		indicators: indicators,
		supported:  supported,
		logger:     log,
		state:      StateConnecting,
		sendCh:     make(chan *models.OutboundMessage, sendBufferSize),
		done:       make(chan struct{}),
		symbols:    make(map[string]struct{}),
	}
}

// ID implements Subscriber.
func (c *Conn) ID() string { return c.id }

// State reports the current lifecycle state.
func (c *Conn) State() int32 { return atomic.LoadInt32(&c.state) }

// Send implements Subscriber. It never blocks: a full outbound buffer
// means the client cannot keep up and the hub should drop it.
func (c *Conn) Send(msg *models.OutboundMessage) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.id)
	case c.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", c.id)
	}
}

// Run services the connection until it closes. It sends the hello frame,
// then pumps reads and writes.
func (c *Conn) Run() {
	atomic.StoreInt32(&c.state, StateOpen)
	c.enqueue(&models.OutboundMessage{
		Type:             models.MsgConnectionEstablished,
		ClientID:         c.id,
		SupportedSymbols: c.supported,
		Timestamp:        time.Now().Unix(),
	})

	go c.writePump()
	c.readPump()
}

// Close tears the connection down and detaches it from the hub.
func (c *Conn) Close() {
	c.once.Do(func() {
		atomic.StoreInt32(&c.state, StateClosed)
		c.hub.Disconnect(c.id)
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) enqueue(msg *models.OutboundMessage) {
	select {
	case c.sendCh <- msg:
	default:
	}
}

func (c *Conn) readPump() {
	defer c.Close()
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in models.InboundMessage
		if err := c.ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("stream read", applogger.String("conn", c.id), applogger.Error(err))
			}
			return
		}
		c.handle(&in)
	}
}

func (c *Conn) handle(in *models.InboundMessage) {
	switch in.Type {
	case models.MsgSubscribeSymbol:
		if !c.supports(in.Symbol) {
			return
		}
		c.mu.Lock()
		c.symbols[in.Symbol] = struct{}{}
		c.mu.Unlock()
		c.hub.Subscribe(in.Symbol, c)
		atomic.StoreInt32(&c.state, StateSubscribed)

	case models.MsgUnsubscribeSymbol:
		c.mu.Lock()
		delete(c.symbols, in.Symbol)
		remaining := len(c.symbols)
		c.mu.Unlock()
		c.hub.Unsubscribe(in.Symbol, c.id)
		if remaining == 0 && c.State() == StateSubscribed {
			atomic.StoreInt32(&c.state, StateOpen)
		}

	case models.MsgGetCurrentIndicators:
		c.mu.Lock()
		symbols := make([]string, 0, len(c.symbols))
		for s := range c.symbols {
			symbols = append(symbols, s)
		}
		c.mu.Unlock()
		for _, sym := range symbols {
			for _, snap := range c.indicators.CurrentSnapshots(sym) {
				c.enqueue(&models.OutboundMessage{
					Type:      models.MsgIndicatorUpdate,
					Symbol:    sym,
					Timestamp: snap.Timestamp.Unix(),
					Data:      snap,
				})
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case msg := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) supports(symbol string) bool {
	for _, s := range c.supported {
		if s == symbol {
			return true
		}
	}
	return false
}
