// Package recovery implements warm-restart recovery (SPEC_FULL.md §4.5):
// on startup, the checkpointed bucket->next-hop map for every prefix is
// read back from the state-DB once, before the first materialisation, so a
// controller restarting mid-operation reconstructs its in-memory layout
// instead of reprogramming from scratch. Grounded on FgNhgOrch::bake() in
// fgnhgorch.cpp, and on the load-once-then-drain shape of
// modules/backendscheduler/cache.go's loadWorkCache.
package recovery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sonic-net/fgnhgctl/internal/store"
)

// RouteTable is the state-DB table name the recoverer reads, matching the
// warm-restart route checkpoint table the southbound agent writes
// (SPEC_FULL.md §6).
const RouteTable = store.RouteTable

// Map is the recovered checkpoint: prefix -> bucket index -> next-hop
// string, consumed at most once per prefix by Take.
type Map struct {
	byPrefix map[string]map[int]string
}

// Take returns the recovered next-hop strings for prefix, indexed by
// bucket, and removes the entry so a second materialisation of the same
// prefix never replays stale checkpoint data. The second bool reports
// whether anything was recovered for prefix at all.
func (m *Map) Take(prefix string) (map[int]string, bool) {
	if m == nil {
		return nil, false
	}
	entry, ok := m.byPrefix[prefix]
	if !ok {
		return nil, false
	}
	delete(m.byPrefix, prefix)
	return entry, true
}

// Loader reads the warm-restart checkpoint from a store.StateDB.
type Loader struct {
	DB store.StateDB
}

// NewLoader builds a Loader over db.
func NewLoader(db store.StateDB) *Loader {
	return &Loader{DB: db}
}

// Load enumerates every row of RouteTable, builds a Map keyed by prefix,
// and deletes each row as it is consumed — mirroring bake()'s
// remove_state_db_route_entry call, which drops each prefix from the
// checkpoint table as soon as it has been read into memory, so a second
// warm restart before the first materialisation completes doesn't see a
// half-consumed table.
func (l *Loader) Load(ctx context.Context) (*Map, error) {
	keys, err := l.DB.Keys(RouteTable)
	if err != nil {
		return nil, fmt.Errorf("recovery: listing %s keys: %w", RouteTable, err)
	}

	out := &Map{byPrefix: make(map[string]map[int]string, len(keys))}
	for _, prefix := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, ok, err := l.DB.Row(RouteTable, prefix)
		if err != nil {
			return nil, fmt.Errorf("recovery: reading row %s: %w", prefix, err)
		}
		if !ok {
			continue
		}

		byIndex := make(map[int]string, len(row))
		for field, nh := range row {
			index, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("recovery: row %s has non-numeric bucket field %q: %w", prefix, field, err)
			}
			byIndex[index] = nh
		}
		out.byPrefix[prefix] = byIndex

		if err := l.DB.DelRow(RouteTable, prefix); err != nil {
			return nil, fmt.Errorf("recovery: clearing row %s: %w", prefix, err)
		}
	}

	return out, nil
}
