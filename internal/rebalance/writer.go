package rebalance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/metrics"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// StateDBWriter is the production Writer: it repoints the existing group-
// member's next-hop attribute in the ASIC and checkpoints the new owner
// into the state DB's route table, matching write_hash_bucket_change_to_sai
// paired with set_state_db_route_entry in the original.
type StateDBWriter struct {
	Asic      southbound.AsicGroup
	Neighbors southbound.NeighborResolver
	// StateDB is optional; a nil StateDB disables warm-restart
	// checkpointing (no persistence across restarts).
	StateDB store.StateDB
}

func (w *StateDBWriter) WriteBucket(ctx context.Context, inst *store.GroupInstance, index int, nh nhkey.Key) error {
	if index < 0 || index >= len(inst.MemberHandles) {
		return fmt.Errorf("%w: bucket index %d out of range for %s", fgerr.ErrInvariant, index, inst.Key)
	}

	nhHandle, ok := w.Neighbors.NextHopHandle(nh.IP, nh.Interface)
	if !ok {
		return fmt.Errorf("%w: next-hop %s has no resolved ASIC handle", fgerr.ErrTransient, nh)
	}

	memberHandle := inst.MemberHandles[index]
	if memberHandle == "" {
		return fmt.Errorf("%w: bucket %d of %s has no group-member handle", fgerr.ErrInvariant, index, inst.Key)
	}

	if err := w.Asic.MemberSetNextHop(ctx, memberHandle, nhHandle); err != nil {
		return fmt.Errorf("%w: programming bucket %d of %s: %v", fgerr.ErrTransient, index, inst.Key, err)
	}

	if w.StateDB != nil {
		if err := w.StateDB.SetField(store.RouteTable, inst.Key.Prefix, strconv.Itoa(index), nh.String()); err != nil {
			return fmt.Errorf("%w: checkpointing bucket %d of %s: %v", fgerr.ErrTransient, index, inst.Key, err)
		}
	}

	metrics.BucketRewrites.Inc()
	return nil
}
