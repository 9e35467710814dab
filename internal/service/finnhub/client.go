package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/logger"
)

var errNoTrade = errors.New("no trade received yet")

// Client keeps a Finnhub trade stream open and answers FetchQuote from the
// latest trade seen per symbol.
type Client struct {
	name           string
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	staleAfter     time.Duration
	dialer         *websocket.Dialer
	log            *logger.Logger
	now            func() time.Time

	mu        sync.RWMutex
	connected bool
	latest    map[string]lastTrade

	cancel context.CancelFunc
	done   chan struct{}
}

type lastTrade struct {
	price decimal.Decimal
	at    time.Time
}

type Option func(*Client)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithStaleAfter bounds how old the latest trade may be when served.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Client) { c.staleAfter = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a stream client. websocketURL defaults to wss://ws.finnhub.io.
func New(name, apiKey, websocketURL string, symbols []string, log *logger.Logger, opts ...Option) *Client {
	if websocketURL == "" {
		websocketURL = "wss://ws.finnhub.io"
	}
	c := &Client{
		name:           name,
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		staleAfter:     2 * time.Minute,
		dialer:         websocket.DefaultDialer,
		log:            log,
		now:            time.Now,
		latest:         make(map[string]lastTrade),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// Start runs the connect/read/reconnect loop in the background. Connection
// failures surface through FetchQuote, not here.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return fmt.Errorf("finnhub %s already started", c.name)
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Close stops the loop and waits for it.
func (c *Client) Close() error {
	c.mu.RLock()
	cancel, done := c.cancel, c.done
	c.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}
	symbol := inst.SymbolFor(c.name)
	c.mu.RLock()
	t, ok := c.latest[symbol]
	c.mu.RUnlock()
	if !ok {
		return models.Quote{}, &models.TransientFetchError{Source: c.name, Instrument: inst.ID, Err: errNoTrade}
	}
	if c.staleAfter > 0 && c.now().Sub(t.at) > c.staleAfter {
		return models.Quote{}, &models.TransientFetchError{
			Source: c.name, Instrument: inst.ID,
			Err: fmt.Errorf("last trade at %s is stale", t.at.Format(time.RFC3339)),
		}
	}
	return models.Quote{InstrumentID: inst.ID, Source: c.name, Price: t.price, Timestamp: t.at}, nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		conn, err := c.connect(ctx)
		if err == nil {
			err = c.read(ctx, conn)
		}
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("finnhub stream interrupted",
			logger.String("source", c.name),
			logger.Duration("reconnect_in", c.reconnectDelay),
			logger.Error(err))

		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return nil, fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("finnhub connect: %w", err)
	}
	for _, s := range c.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.setConnected(true)
	c.log.Info("finnhub connected", logger.String("source", c.name), logger.Strings("symbols", c.symbols))
	return conn, nil
}

type fhTrade struct {
	S string          `json:"s"`
	P decimal.Decimal `json:"p"`
	V float64         `json:"v"`
	T int64           `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// read consumes frames until the connection fails or ctx ends.
func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()
	defer conn.Close()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		var m fhMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			continue
		}
		c.mu.Lock()
		for _, d := range m.Data {
			at := time.UnixMilli(d.T).UTC()
			if prev, ok := c.latest[d.S]; ok && at.Before(prev.at) {
				continue
			}
			c.latest[d.S] = lastTrade{price: d.P, at: at}
		}
		c.mu.Unlock()
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

var (
	_ drepo.QuoteSource = (*Client)(nil)
	_ drepo.Lifecycle   = (*Client)(nil)
)
