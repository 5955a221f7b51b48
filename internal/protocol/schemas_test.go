package protocol_test

import (
	"encoding/json"
	"testing"

	"broadside.gg/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	validate := func(want, raw string) {
		t.Helper()
		typ, err := v.Validate([]byte(raw))
		if err != nil {
			t.Fatalf("validate %s: %v", want, err)
		}
		if typ != want {
			t.Fatalf("type=%q want %q", typ, want)
		}
	}

	validate(protocol.TypeConfig, `{
	  "type":"CONFIG",
	  "protocol_version":"1.0",
	  "config":{
	    "start_time":1700000000,
	    "commit_phase_length":30,
	    "reveal_phase_length":30,
	    "action_phase_length":60,
	    "world_size":100,
	    "entry_cutoff_turn":2,
	    "shrink_rate":150,
	    "perlin_seed":42
	  }
	}`)
	validate(protocol.TypeBatch, `{
	  "type":"BATCH",
	  "protocol_version":"1.0",
	  "tx":"0xabc",
	  "actions":[{
	    "ship":"0x64",
	    "action_tags":[1,2],
	    "special_entities":["0x65","0"],
	    "metadata":["0x","0x"]
	  }],
	  "updates":[{"entity":"100","component":"Health","value":2}]
	}`)
	validate(protocol.TypeSpawn, `{
	  "type":"SPAWN",
	  "protocol_version":"1.0",
	  "entity":"0xc8",
	  "kind":"ship",
	  "components":[{"entity":"0xc8","component":"Position","value":{"x":1,"y":2}}]
	}`)
	validate(protocol.TypeDestroy, `{"type":"DESTROY","protocol_version":"1.0","entity":"0xc8"}`)
	validate(protocol.TypeReset, `{"type":"RESET","protocol_version":"1.0","reason":"new game"}`)

	notice, _ := json.Marshal(protocol.NewNotice(protocol.ErrCommitmentMismatch, "reveal does not match commitment"))
	validate(protocol.TypeNotice, string(notice))
}

func TestSchemas_RejectsBadMessages(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{`, protocol.ErrProtoBadRequest},
		{"unknown type", `{"type":"HELLO","protocol_version":"1.0"}`, protocol.ErrProtoBadRequest},
		{"old version", `{"type":"RESET","protocol_version":"0.9"}`, protocol.ErrProtoVersion},
		{"bad kind", `{"type":"SPAWN","protocol_version":"1.0","entity":"1","kind":"island"}`, protocol.ErrProtoBadRequest},
		{"three tags", `{"type":"BATCH","protocol_version":"1.0","tx":"t","actions":[{"ship":"1","action_tags":[1,2,3],"special_entities":["0","0"],"metadata":["0x","0x"]}]}`, protocol.ErrProtoBadRequest},
		{"tag too big", `{"type":"BATCH","protocol_version":"1.0","tx":"t","actions":[{"ship":"1","action_tags":[1,300],"special_entities":["0","0"],"metadata":["0x","0x"]}]}`, protocol.ErrProtoBadRequest},
		{"negative phase", `{"type":"CONFIG","protocol_version":"1.0","config":{"start_time":0,"commit_phase_length":-1,"reveal_phase_length":1,"action_phase_length":1,"world_size":1,"entry_cutoff_turn":0,"shrink_rate":0,"perlin_seed":0}}`, protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		_, err := v.Validate([]byte(tc.raw))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if got := protocol.CodeOf(err); got != tc.code {
			t.Fatalf("%s: code=%q want %q (%v)", tc.name, got, tc.code, err)
		}
	}
}
