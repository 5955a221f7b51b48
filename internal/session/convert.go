package session

import (
	"encoding/hex"
	"fmt"
	"strings"

	"broadside.gg/internal/protocol"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/reconcile"
)

func badRequest(format string, args ...any) error {
	return &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: fmt.Errorf(format, args...)}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// toUpdates converts wire updates one at a time. An update whose entity
// does not parse is carried with Err set so the reconciler reports it
// and applies the rest.
func toUpdates(field string, recs []protocol.UpdateRecord) []reconcile.Update {
	out := make([]reconcile.Update, 0, len(recs))
	for i, u := range recs {
		id, err := entities.ParseID(u.Entity)
		if err != nil {
			out = append(out, reconcile.Update{
				Component: u.Component,
				Err:       badRequest("%s[%d].entity: %v", field, i, err),
				Raw:       u.Entity,
			})
			continue
		}
		out = append(out, reconcile.Update{Entity: id, Component: u.Component, Value: u.Value})
	}
	return out
}

// toBatch converts a wire batch. Records are kept in wire order; a record
// or slot that does not parse is marked, never allowed to sink the batch.
func toBatch(m protocol.BatchMsg) reconcile.Batch {
	b := reconcile.Batch{Tx: m.Tx}
	for i, a := range m.Actions {
		b.Actions = append(b.Actions, toAction(i, a))
	}
	b.Updates = toUpdates("updates", m.Updates)
	return b
}

func toAction(i int, a protocol.ActionRecord) reconcile.ActionRecord {
	ship, err := entities.ParseID(a.Ship)
	if err != nil {
		return reconcile.ActionRecord{Err: badRequest("actions[%d].ship: %v", i, err), Raw: a.Ship}
	}
	rec := reconcile.ActionRecord{Ship: ship, Tags: a.ActionTags}
	for slot := 0; slot < 2; slot++ {
		if rec.Specials[slot], err = entities.ParseID(a.SpecialEntities[slot]); err != nil {
			rec.SlotErr[slot] = badRequest("actions[%d].special_entities[%d]: %v", i, slot, err)
			continue
		}
		if rec.Metadata[slot], err = decodeHex(a.Metadata[slot]); err != nil {
			rec.SlotErr[slot] = badRequest("actions[%d].metadata[%d]: %v", i, slot, err)
		}
	}
	return rec
}
