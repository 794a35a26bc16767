// Package feed implements the live observation stream over a WebSocket
// connection. Frames carry batches of points; each point is forwarded on
// the stream channel or dropped when the consumer lags.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"SeriesPrep/internal/domain/models"
	drepo "SeriesPrep/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Config holds the feed endpoint and stream tuning.
type Config struct {
	APIKey         string
	WebSocketURL   string
	Series         []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client is the WebSocket-backed PointStream. The connection pointer is
// guarded; the read and ping loops hold their own snapshot so a Reconnect
// never swaps a socket out from under them.
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn *websocket.Conn
}

// New builds a PointStream for the given endpoint and series set.
func New(cfg Config) drepo.PointStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Client{cfg: cfg}
}

// Connect dials the feed, authenticating through a query token.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.WebSocketURL)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Printf("feed: connected to %s", u.Host)
	return nil
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Series string `json:"series"`
}

// Subscribe registers every configured series on the open connection.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return errors.New("feed not connected")
	}
	for _, s := range c.cfg.Series {
		if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Series: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	log.Printf("feed: subscribed to %d series", len(c.cfg.Series))
	return nil
}

// wireFrame is one feed message. Only type "data" carries points.
type wireFrame struct {
	Type string      `json:"type"`
	Data []wirePoint `json:"data"`
}

type wirePoint struct {
	Series string  `json:"s"`
	Value  float64 `json:"v"`
	Millis int64   `json:"t"`
}

// Read starts the ping and read loops and returns their channels. Both
// channels close when the connection dies; the caller decides whether
// to Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan *models.Point, <-chan error) {
	points := make(chan *models.Point, 1024)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- errors.New("feed not connected")
		close(points)
		close(errs)
		return points, errs
	}

	// A peer that stops answering pings is declared dead through the
	// read deadline instead of hanging the read loop forever.
	wait := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	go c.pingLoop(ctx, conn)
	go c.readLoop(ctx, conn, points, errs)
	return points, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, points chan<- *models.Point, errs chan<- error) {
	defer close(points)
	defer close(errs)

	var dropped int
	for {
		if ctx.Err() != nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			errs <- fmt.Errorf("feed read: %w", err)
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "data" {
			continue
		}
		for _, w := range frame.Data {
			pt := &models.Point{
				Series:    w.Series,
				Timestamp: w.Millis / 1000,
				Value:     w.Value,
			}
			select {
			case points <- pt:
			default:
				// Dropping beats blocking the socket; losses surface in
				// the log so a lagging consumer is visible.
				dropped++
				if dropped%1000 == 1 {
					log.Printf("feed: consumer lagging, %d points dropped", dropped)
				}
			}
		}
	}
}

// Reconnect tears down the current connection and dials again after the
// configured delay. The delay wait aborts when ctx is cancelled.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close shuts the connection; in-flight loops observe the closed socket
// and exit.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool { return c.current() != nil }

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
