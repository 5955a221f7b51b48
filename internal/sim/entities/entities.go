// Package entities maps chain entity identifiers to local entity handles.
package entities

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrUnresolvableEntity = errors.New("unresolvable entity")

// ID is a chain entity identifier (a uint256, big-endian).
type ID [32]byte

// Handle is the local entity handle. Zero is never assigned.
type Handle uint32

func (id ID) IsZero() bool { return id == ID{} }

// String renders the id as 0x-prefixed hex without leading zero bytes.
func (id ID) String() string {
	return "0x" + new(big.Int).SetBytes(id[:]).Text(16)
}

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseID accepts 0x-prefixed hex or a decimal string.
func ParseID(s string) (ID, error) {
	var id ID
	s = strings.TrimSpace(s)
	if s == "" {
		return id, fmt.Errorf("entity id: empty")
	}
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		h := s[2:]
		if h == "" {
			return id, fmt.Errorf("entity id %q: no digits", s)
		}
		if _, err := hex.DecodeString(evenHex(h)); err != nil {
			return id, fmt.Errorf("entity id %q: %w", s, err)
		}
		_, ok = n.SetString(h, 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok || n.Sign() < 0 {
		return id, fmt.Errorf("entity id %q: not a uint256", s)
	}
	if n.BitLen() > 256 {
		return id, fmt.Errorf("entity id %q: overflows uint256", s)
	}
	n.FillBytes(id[:])
	return id, nil
}

// IDFromUint64 is a convenience for tests and tools.
func IDFromUint64(v uint64) ID {
	var id ID
	new(big.Int).SetUint64(v).FillBytes(id[:])
	return id
}

func evenHex(h string) string {
	if len(h)%2 == 1 {
		return "0" + h
	}
	return h
}

// Kind is the entity archetype the chain declared on spawn.
type Kind string

const (
	KindShip   Kind = "ship"
	KindCannon Kind = "cannon"
	KindPlayer Kind = "player"
)

// Resolver resolves chain ids to local handles and back. Implementations
// must be safe for concurrent readers.
type Resolver interface {
	Resolve(id ID) (Handle, bool)
	ChainID(h Handle) (ID, bool)
}

// Registry is a Resolver that can also allocate and release handles.
type Registry interface {
	Resolver
	Register(id ID, kind Kind) (Handle, error)
	Remove(id ID) error
	Reset() error
}

// Lookup resolves id or returns ErrUnresolvableEntity wrapped with the id.
func Lookup(r Resolver, id ID) (Handle, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: %s (no resolver)", ErrUnresolvableEntity, id)
	}
	h, ok := r.Resolve(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnresolvableEntity, id)
	}
	return h, nil
}
