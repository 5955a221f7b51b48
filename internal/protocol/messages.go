package protocol

import (
	"encoding/json"

	"broadside.gg/internal/sim/gameconfig"
)

// CONFIG carries the immutable game config. It is re-sent on every
// reconnect.
type ConfigMsg struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Config          gameconfig.GameConfig `json:"config"`
}

// BATCH is one confirmed transaction: its action records in order plus
// every component update the transaction produced.
type BatchMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tx              string         `json:"tx"`
	Actions         []ActionRecord `json:"actions,omitempty"`
	Updates         []UpdateRecord `json:"updates,omitempty"`
}

// ActionRecord mirrors the chain's per-ship action event. Entity ids are
// 0x hex or decimal strings; metadata is 0x hex ABI bytes.
type ActionRecord struct {
	Ship            string    `json:"ship"`
	ActionTags      [2]uint8  `json:"action_tags"`
	SpecialEntities [2]string `json:"special_entities"`
	Metadata        [2]string `json:"metadata"`
}

type UpdateRecord struct {
	Entity    string          `json:"entity"`
	Component string          `json:"component"`
	Value     json.RawMessage `json:"value"`
}

// SPAWN introduces an entity together with its initial components.
type SpawnMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Entity          string         `json:"entity"`
	Kind            string         `json:"kind"`
	Components      []UpdateRecord `json:"components,omitempty"`
}

type DestroyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Entity          string `json:"entity"`
}

// RESET starts a new game: every entity, shadow and cache is dropped.
type ResetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason,omitempty"`
}

// NOTICE (session -> player) surfaces recoverable problems.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	Entity          string `json:"entity,omitempty"`
}

func NewNotice(code, msg string) NoticeMsg {
	return NoticeMsg{Type: TypeNotice, ProtocolVersion: Version, Code: code, Message: msg}
}
