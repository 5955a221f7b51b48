package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu           sync.Mutex
	msgs         chan []byte
	disconnected int
}

func (h *recordingHandler) Handle(raw []byte) error {
	h.msgs <- append([]byte(nil), raw...)
	return nil
}

func (h *recordingHandler) Disconnected() {
	h.mu.Lock()
	h.disconnected++
	h.mu.Unlock()
}

func (h *recordingHandler) disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}

func sameJSON(t *testing.T, a, b []byte) {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if !reflect.DeepEqual(va, vb) {
		t.Fatalf("json mismatch:\n got %s\nwant %s", a, b)
	}
}

func TestFrames_BinaryRoundTrip(t *testing.T) {
	msg := []byte(`{"type":"BATCH","protocol_version":"1.0","tx":"0x1","updates":[{"entity":"0x64","component":"Position","value":{"x":1.5,"y":-2}}]}`)
	b, err := EncodeBinary(json.RawMessage(msg))
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	got, err := DecodeFrame(websocket.BinaryMessage, b)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	sameJSON(t, got, msg)

	if _, err := DecodeFrame(websocket.BinaryMessage, []byte("not zstd")); err == nil {
		t.Fatalf("expected error for garbage binary frame")
	}
}

func TestClient_ReceivesTextAndBinary(t *testing.T) {
	config := []byte(`{"type":"RESET","protocol_version":"1.0","reason":"join"}`)
	relay := NewRelay(nil)
	relay.OnJoin(func(send func([]byte)) { send(config) })
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	h := &recordingHandler{msgs: make(chan []byte, 8)}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, h, ClientOptions{ReconnectEvery: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	next := func() []byte {
		t.Helper()
		select {
		case m := <-h.msgs:
			return m
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message")
		}
		return nil
	}
	sameJSON(t, next(), config)

	deadline := time.Now().Add(5 * time.Second)
	for relay.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	text := []byte(`{"type":"DESTROY","protocol_version":"1.0","entity":"0x1"}`)
	bin := []byte(`{"type":"DESTROY","protocol_version":"1.0","entity":"0x2"}`)
	if err := relay.Broadcast(text, false); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := relay.Broadcast(bin, true); err != nil {
		t.Fatalf("Broadcast binary: %v", err)
	}
	sameJSON(t, next(), text)
	sameJSON(t, next(), bin)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if h.disconnects() == 0 {
		t.Fatalf("handler was not told about the disconnect")
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	relay := NewRelay(nil)
	joins := make(chan struct{}, 8)
	relay.OnJoin(func(func([]byte)) { joins <- struct{}{} })
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	h := &recordingHandler{msgs: make(chan []byte, 8)}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, h, ClientOptions{ReconnectEvery: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	<-joins
	deadline := time.Now().Add(5 * time.Second)
	for relay.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	relay.DisconnectAll()
	select {
	case <-joins:
	case <-time.After(5 * time.Second):
		t.Fatalf("client did not reconnect")
	}
	if h.disconnects() == 0 {
		t.Fatalf("expected a disconnect before the reconnect")
	}
}
