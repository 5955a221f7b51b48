package ws

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Handler consumes decoded JSON messages on the read goroutine.
type Handler interface {
	Handle(raw []byte) error
	Disconnected()
}

// Recorder, when set, sees every decoded message before the handler.
type Recorder interface {
	WriteMessage(raw []byte) error
}

type ClientOptions struct {
	Logger   *log.Logger
	Header   http.Header
	Recorder Recorder

	// Reconnects are paced by a token bucket of Burst tokens refilled
	// every ReconnectEvery.
	ReconnectEvery time.Duration
	Burst          int

	ReadTimeout time.Duration
}

// Client keeps a subscription to the chain-sync relay alive.
type Client struct {
	url     string
	h       Handler
	log     *log.Logger
	header  http.Header
	rec     Recorder
	limiter *rate.Limiter
	dialer  *websocket.Dialer
	timeout time.Duration
}

func NewClient(url string, h Handler, opts ClientOptions) *Client {
	lg := opts.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	every := opts.ReconnectEvery
	if every <= 0 {
		every = 2 * time.Second
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:     url,
		h:       h,
		log:     lg,
		header:  opts.Header,
		rec:     opts.Recorder,
		limiter: rate.NewLimiter(rate.Every(every), burst),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  16 * 1024,
		},
		timeout: timeout,
	}
}

// Run dials, reads until the connection drops, and redials until ctx ends.
// The handler is told about every disconnect so it can drop the config.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Printf("disconnected: %v", err)
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return err
	}
	defer c.h.Disconnected()
	defer conn.Close()
	c.log.Printf("connected %s", c.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.timeout))
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		raw, err := DecodeFrame(mt, frame)
		if err != nil {
			c.log.Printf("drop frame: %v", err)
			continue
		}
		if c.rec != nil {
			if err := c.rec.WriteMessage(raw); err != nil {
				c.log.Printf("record: %v", err)
			}
		}
		if err := c.h.Handle(raw); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Printf("handle: %v", err)
		}
	}
}
