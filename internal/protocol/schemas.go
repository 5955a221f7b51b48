package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://broadside.gg/schemas/"

var schemaByType = map[string]string{
	TypeConfig:  "config.schema.json",
	TypeBatch:   "batch.schema.json",
	TypeSpawn:   "spawn.schema.json",
	TypeDestroy: "destroy.schema.json",
	TypeReset:   "reset.schema.json",
	TypeNotice:  "notice.schema.json",
}

// Validator checks inbound messages against the embedded schemas before
// they reach the session.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for typ, name := range schemaByType {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

// Validate decodes raw and checks it against its type's schema. It
// returns the routed type.
func (v *Validator) Validate(raw []byte) (string, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return "", &Error{Code: ErrProtoBadRequest, Err: err}
	}
	s, ok := v.schemas[base.Type]
	if !ok {
		return base.Type, &Error{Code: ErrProtoBadRequest, Err: fmt.Errorf("unknown message type %q", base.Type)}
	}
	if !strings.HasPrefix(base.ProtocolVersion, "1.") {
		return base.Type, &Error{Code: ErrProtoVersion, Err: fmt.Errorf("protocol_version %q", base.ProtocolVersion)}
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return base.Type, &Error{Code: ErrProtoBadRequest, Err: err}
	}
	if err := s.Validate(doc); err != nil {
		return base.Type, &Error{Code: ErrProtoBadRequest, Err: err}
	}
	return base.Type, nil
}
