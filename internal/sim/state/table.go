// Package state holds the typed component tables the simulation reads:
// the two dual-value shadow stores (local and backend) and the
// single-valued chain components.
package state

import (
	"sort"

	"broadside.gg/internal/sim/entities"
)

// Table is one component column keyed by entity handle.
type Table[T any] struct {
	rows map[entities.Handle]T
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{rows: map[entities.Handle]T{}}
}

func (t *Table[T]) Get(h entities.Handle) (T, bool) {
	v, ok := t.rows[h]
	return v, ok
}

// GetOr returns def when h has no row.
func (t *Table[T]) GetOr(h entities.Handle, def T) T {
	if v, ok := t.rows[h]; ok {
		return v
	}
	return def
}

func (t *Table[T]) Set(h entities.Handle, v T) { t.rows[h] = v }

func (t *Table[T]) Has(h entities.Handle) bool {
	_, ok := t.rows[h]
	return ok
}

func (t *Table[T]) Delete(h entities.Handle) { delete(t.rows, h) }

func (t *Table[T]) Len() int { return len(t.rows) }

func (t *Table[T]) Clear() { t.rows = map[entities.Handle]T{} }

// Query returns matching handles in ascending order.
func (t *Table[T]) Query(pred func(h entities.Handle, v T) bool) []entities.Handle {
	var out []entities.Handle
	for h, v := range t.rows {
		if pred == nil || pred(h, v) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// copyRow mirrors src's row for h into dst, deleting it when src has none.
func copyRow[T any](dst, src *Table[T], h entities.Handle) {
	if v, ok := src.Get(h); ok {
		dst.Set(h, v)
		return
	}
	dst.Delete(h)
}
