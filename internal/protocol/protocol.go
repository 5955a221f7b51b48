package protocol

import "encoding/json"

const Version = "1.0"

// Message types. All flow chain-sync -> client except NOTICE, which the
// session emits to the player-facing layer.
const (
	TypeConfig  = "CONFIG"
	TypeBatch   = "BATCH"
	TypeSpawn   = "SPAWN"
	TypeDestroy = "DESTROY"
	TypeReset   = "RESET"
	TypeNotice  = "NOTICE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
