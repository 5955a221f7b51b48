package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
)

type outFrame struct {
	mt   int
	data []byte
}

// Relay fans messages out to every subscribed client. It backs local
// development and session replays; the production relay lives elsewhere.
type Relay struct {
	log *log.Logger

	upgrader websocket.Upgrader

	mu      deadlock.Mutex
	subs    map[chan outFrame]*websocket.Conn
	onJoin  func(send func(raw []byte))
	queueSz int
}

func NewRelay(logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Relay{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:    map[chan outFrame]*websocket.Conn{},
		queueSz: 256,
	}
}

// OnJoin runs for each new subscriber before it receives broadcasts;
// use it to send the current CONFIG.
func (r *Relay) OnJoin(fn func(send func(raw []byte))) { r.onJoin = fn }

func (r *Relay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Broadcast queues raw JSON for every subscriber. Binary frames are
// packed with EncodeBinary.
func (r *Relay) Broadcast(raw []byte, binary bool) error {
	f := outFrame{mt: websocket.TextMessage, data: raw}
	if binary {
		b, err := EncodeBinary(json.RawMessage(raw))
		if err != nil {
			return err
		}
		f = outFrame{mt: websocket.BinaryMessage, data: b}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- f:
		default:
			r.log.Printf("relay: subscriber queue full, dropping frame")
		}
	}
	return nil
}

// DisconnectAll drops every subscriber connection.
func (r *Relay) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.subs {
		_ = conn.Close()
	}
}

func (r *Relay) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := make(chan outFrame, r.queueSz)
		if r.onJoin != nil {
			r.onJoin(func(raw []byte) { out <- outFrame{mt: websocket.TextMessage, data: raw} })
		}
		r.mu.Lock()
		r.subs[out] = conn
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			delete(r.subs, out)
			r.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(f.mt, f.data); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop only drains control frames; clients never send data.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}
