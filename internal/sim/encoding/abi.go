// Package encoding implements the subset of the contract ABI word
// encoding the client needs: dynamic uint256 arrays and arrays of
// uint256 pairs followed by a static word.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"

	"broadside.gg/internal/sim/entities"
)

const WordSize = 32

var ErrMalformed = errors.New("malformed abi payload")

func uintWord(v uint64) [WordSize]byte {
	var w [WordSize]byte
	binary.BigEndian.PutUint64(w[WordSize-8:], v)
	return w
}

// wordUint reads a word that must fit in a uint64.
func wordUint(b []byte) (uint64, error) {
	for _, c := range b[:WordSize-8] {
		if c != 0 {
			return 0, fmt.Errorf("%w: word overflows uint64", ErrMalformed)
		}
	}
	return binary.BigEndian.Uint64(b[WordSize-8 : WordSize]), nil
}

func wordAt(b []byte, off uint64) ([]byte, error) {
	if off > uint64(len(b)) || uint64(len(b))-off < WordSize {
		return nil, fmt.Errorf("%w: short read at offset %d (len %d)", ErrMalformed, off, len(b))
	}
	return b[off : off+WordSize], nil
}

// EncodeIDs encodes a single dynamic uint256[] argument.
func EncodeIDs(ids []entities.ID) []byte {
	out := make([]byte, 0, WordSize*(2+len(ids)))
	head := uintWord(WordSize)
	n := uintWord(uint64(len(ids)))
	out = append(out, head[:]...)
	out = append(out, n[:]...)
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

// DecodeIDs is the inverse of EncodeIDs. An empty payload decodes to nil.
func DecodeIDs(b []byte) ([]entities.ID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	w, err := wordAt(b, 0)
	if err != nil {
		return nil, err
	}
	off, err := wordUint(w)
	if err != nil {
		return nil, err
	}
	return decodeIDArray(b, off, 1)
}

// decodeIDArray reads a length-prefixed array of stride-word elements at off.
func decodeIDArray(b []byte, off uint64, stride int) ([]entities.ID, error) {
	w, err := wordAt(b, off)
	if err != nil {
		return nil, err
	}
	n, err := wordUint(w)
	if err != nil {
		return nil, err
	}
	body := off + WordSize
	words := n * uint64(stride)
	if n > uint64(len(b)) || body+words*WordSize > uint64(len(b)) {
		return nil, fmt.Errorf("%w: array of %d elements exceeds payload", ErrMalformed, n)
	}
	out := make([]entities.ID, 0, words)
	for i := uint64(0); i < words; i++ {
		var id entities.ID
		copy(id[:], b[body+i*WordSize:body+(i+1)*WordSize])
		out = append(out, id)
	}
	return out, nil
}

// EncodePairs encodes (uint256[2][] pairs, uint256 tail).
func EncodePairs(pairs [][2]entities.ID, tail entities.ID) []byte {
	out := make([]byte, 0, WordSize*(3+2*len(pairs)))
	head := uintWord(2 * WordSize)
	n := uintWord(uint64(len(pairs)))
	out = append(out, head[:]...)
	out = append(out, tail[:]...)
	out = append(out, n[:]...)
	for _, p := range pairs {
		out = append(out, p[0][:]...)
		out = append(out, p[1][:]...)
	}
	return out
}

// DecodePairs is the inverse of EncodePairs.
func DecodePairs(b []byte) ([][2]entities.ID, entities.ID, error) {
	var tail entities.ID
	w, err := wordAt(b, 0)
	if err != nil {
		return nil, tail, err
	}
	off, err := wordUint(w)
	if err != nil {
		return nil, tail, err
	}
	tw, err := wordAt(b, WordSize)
	if err != nil {
		return nil, tail, err
	}
	copy(tail[:], tw)
	flat, err := decodeIDArray(b, off, 2)
	if err != nil {
		return nil, tail, err
	}
	pairs := make([][2]entities.ID, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		pairs = append(pairs, [2]entities.ID{flat[i], flat[i+1]})
	}
	return pairs, tail, nil
}
