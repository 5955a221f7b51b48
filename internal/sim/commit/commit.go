// Package commit implements the commit-reveal encoding for move batches.
//
// The encoding is the contract ABI encoding of (uint256[2][] moves,
// uint256 salt) and the digest is Keccak-256 over it, so a digest
// computed here is byte-identical to the one the chain checks.
package commit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"broadside.gg/internal/sim/encoding"
	"broadside.gg/internal/sim/entities"
)

var ErrCommitmentMismatch = errors.New("commitment mismatch")

// Salt is the second encoded field. It is always zero.
//
// FIXME: with a constant salt identical move batches hash identically in
// every turn, so an observer can match a commitment against a replayed
// batch before reveal. Changing it requires the contract to change too.
var Salt = entities.ID{}

type Move struct {
	Ship entities.ID `json:"ship"`
	Card entities.ID `json:"card"`
}

type Digest [32]byte

func (d Digest) String() string { return "0x" + hex.EncodeToString(d[:]) }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	s := string(b)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	if len(raw) != len(d) {
		return fmt.Errorf("digest: want %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return nil
}

// Encode preserves the order of moves. Callers must not sort: the same
// batch in a different order is a different commitment.
func Encode(moves []Move) []byte {
	pairs := make([][2]entities.ID, len(moves))
	for i, m := range moves {
		pairs[i] = [2]entities.ID{m.Ship, m.Card}
	}
	return encoding.EncodePairs(pairs, Salt)
}

func Decode(b []byte) ([]Move, error) {
	pairs, salt, err := encoding.DecodePairs(b)
	if err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	if salt != Salt {
		return nil, fmt.Errorf("decode moves: unexpected salt %s", salt)
	}
	out := make([]Move, len(pairs))
	for i, p := range pairs {
		out[i] = Move{Ship: p[0], Card: p[1]}
	}
	return out, nil
}

func Hash(b []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	h.Sum(d[:0])
	return d
}

// Commitment is kept locally between commit submission and reveal.
type Commitment struct {
	Digest   Digest `json:"digest"`
	Encoding []byte `json:"encoding"`
}

func Commit(moves []Move) Commitment {
	enc := Encode(moves)
	return Commitment{Digest: Hash(enc), Encoding: enc}
}

// VerifyReveal recomputes the digest; it never trusts one supplied with the bytes.
func VerifyReveal(stored Digest, revealed []byte) bool {
	d := Hash(revealed)
	return bytes.Equal(d[:], stored[:])
}

// Reveal returns revealed unchanged when it matches stored, otherwise
// ErrCommitmentMismatch. A mismatching reveal must not be submitted.
func Reveal(stored Digest, revealed []byte) ([]byte, error) {
	if !VerifyReveal(stored, revealed) {
		return nil, fmt.Errorf("%w: stored %s, revealed hashes to %s", ErrCommitmentMismatch, stored, Hash(revealed))
	}
	return revealed, nil
}
