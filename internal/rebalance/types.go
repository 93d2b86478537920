// Package rebalance implements the bank rebalancing algorithm
// (SPEC_FULL.md §4.2): the three cases of active-bank pairwise swap/net-
// delete/net-add, inactive-to-active activation, active-to-inactive
// deactivation with all-banks-down degradation, and inactive-stays-
// inactive re-delegation. Grounded on set_active_bank_hash_bucket_changes,
// set_inactive_bank_to_next_available_active_bank and
// set_inactive_bank_hash_bucket_changes in the original, adapted from
// SAI/hash-bucket primitives to the Writer seam.
package rebalance

import (
	"context"

	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// Delta is the per-bank membership change driving one Rebalance call.
// Adds and Dels are next-hops entering/leaving the bank's live set;
// StillActive is every next-hop that was live before the change and
// remains live after it.
type Delta struct {
	Adds        []nhkey.Key
	Dels        []nhkey.Key
	StillActive []nhkey.Key
}

// Writer is the single primitive every bucket reassignment funnels
// through: it programs the ASIC group-member and checkpoints the
// index->next-hop pair into the state DB, atomically from the caller's
// point of view.
type Writer interface {
	WriteBucket(ctx context.Context, inst *store.GroupInstance, index int, nh nhkey.Key) error
}
