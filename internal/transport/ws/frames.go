package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Text frames carry JSON. Binary frames carry zstd(msgpack(message)),
// which the relay uses for large batches.

var (
	codecOnce sync.Once
	zdec      *zstd.Decoder
	zenc      *zstd.Encoder
	codecErr  error
)

func codecs() (*zstd.Decoder, *zstd.Encoder, error) {
	codecOnce.Do(func() {
		zdec, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if codecErr != nil {
			return
		}
		zenc, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return zdec, zenc, codecErr
}

// DecodeFrame returns the JSON form of a frame.
func DecodeFrame(messageType int, b []byte) ([]byte, error) {
	switch messageType {
	case websocket.TextMessage:
		return b, nil
	case websocket.BinaryMessage:
		dec, _, err := codecs()
		if err != nil {
			return nil, err
		}
		raw, err := dec.DecodeAll(b, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		var v any
		if err := msgpack.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("msgpack: %w", err)
		}
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported frame type %d", messageType)
}

// EncodeBinary produces a binary frame for v. It goes through JSON first
// so json tags and raw values survive.
func EncodeBinary(v any) ([]byte, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(j, &doc); err != nil {
		return nil, err
	}
	packed, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, err
	}
	_, enc, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(packed, nil), nil
}
