package controller

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/fglog"
	"github.com/sonic-net/fgnhgctl/internal/metrics"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/planner"
	"github.com/sonic-net/fgnhgctl/internal/rebalance"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// materialise implements spec.md §4.4's seven-step materialisation
// sequence, matching createFgNhg/set_new_nhg_members in the original:
// ceiling check, ASIC group creation, real-size query, bank planning,
// recovery replay or round-robin seeding, and state-DB persistence (the
// last folded into every rebalance.Writer.WriteBucket call).
func (c *Controller) materialise(ctx context.Context, key store.VrfPrefix, group *store.GroupSpec, byBank map[int][]nhkey.Key) (*store.GroupInstance, error) {
	if ceiling := c.counters.Ceiling(southbound.ResourceGroup); ceiling > 0 && c.counters.Used(southbound.ResourceGroup) >= ceiling {
		return nil, fmt.Errorf("%w: group ceiling %d reached, cannot materialise %s", fgerr.ErrTransient, ceiling, key)
	}

	handle, err := c.asic.GroupCreate(ctx, group.ConfiguredBucketCount)
	if err != nil {
		return nil, fmt.Errorf("%w: creating asic group for %s: %v", fgerr.ErrTransient, key, err)
	}

	realSize, err := c.asic.GroupGetRealSize(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: querying real bucket count for %s: %v", fgerr.ErrTransient, key, err)
	}

	ranges, err := planner.Plan(bankMemberCounts(group), realSize)
	if err != nil {
		return nil, fmt.Errorf("%w: planning bank ranges for %s: %v", fgerr.ErrConfig, key, err)
	}

	inst := store.NewGroupInstance(key, ranges, realSize)
	inst.AsicGroupHandle = handle
	inst.NhgKey = declaredNextHops(group)

	for i := 0; i < realSize; i++ {
		memberHandle, err := c.asic.MemberCreate(ctx, handle, "", i)
		if err != nil {
			return nil, fmt.Errorf("%w: creating group-member %d for %s: %v", fgerr.ErrTransient, i, key, err)
		}
		inst.MemberHandles[i] = memberHandle
	}

	if recovered, ok := c.recovered.Take(key.Prefix); ok {
		if err := c.replayRecovery(ctx, inst, group, recovered); err != nil {
			return nil, err
		}
		metrics.WarmRestartRecoveries.Inc()
	} else if err := c.seedFromResolved(ctx, inst, byBank); err != nil {
		return nil, err
	}

	c.counters.Inc(southbound.ResourceGroup)
	metrics.Materialisations.Inc()
	metrics.GroupsMaterialised.Inc()
	level.Info(fglog.Logger).Log("msg", "materialised fine-grained group", "event_id", uuid.NewString(), "prefix", key.Prefix, "vrf", key.VRF, "buckets", realSize, "banks", len(ranges))

	c.store.PutInstance(inst)
	return inst, nil
}

// declaredNextHops returns every member IP of group as a next-hop key,
// used to populate GroupInstance.NhgKey so onNextHopUp/onNextHopDown can
// find instances that declare a given next-hop (store.InstancesForNextHop).
func declaredNextHops(group *store.GroupSpec) []nhkey.Key {
	out := make([]nhkey.Key, 0, len(group.Members))
	for ip := range group.Members {
		out = append(out, nhkey.New(ip, ""))
	}
	sortKeys(out)
	return out
}

// seedFromResolved implements materialisation step 5's non-recovery path:
// banks with at least one resolved member are activated round-robin
// (§4.2.2); banks with none are immediately delegated or, if no bank
// anywhere has a member, the whole group degrades (§4.2.3).
func (c *Controller) seedFromResolved(ctx context.Context, inst *store.GroupInstance, byBank map[int][]nhkey.Key) error {
	for bankID := range inst.BankRanges {
		nhs := byBank[bankID]
		if len(nhs) == 0 {
			continue
		}
		if err := c.rebalancer.Rebalance(ctx, inst, bankID, rebalance.Delta{Adds: nhs}); err != nil {
			return err
		}
	}

	for bankID := range inst.BankRanges {
		if inst.PointsToInterface {
			break
		}
		if len(byBank[bankID]) > 0 {
			continue
		}
		if err := c.rebalancer.Rebalance(ctx, inst, bankID, rebalance.Delta{}); err != nil {
			return err
		}
	}

	return nil
}

// replayRecovery implements materialisation step 5's recovery path: every
// checkpointed bucket is re-driven to its recorded next-hop, and a bank
// whose recovered next-hop's configured bank differs from the bucket's own
// bank is recorded as delegated, matching bake()'s reconciliation of
// checkpointed state against the live bank-to-member configuration.
func (c *Controller) replayRecovery(ctx context.Context, inst *store.GroupInstance, group *store.GroupSpec, recovered map[int]string) error {
	for index := 0; index < inst.RealBucketCount; index++ {
		nhStr, ok := recovered[index]
		if !ok {
			continue
		}
		nh, err := nhkey.Parse(nhStr)
		if err != nil {
			return fmt.Errorf("%w: recovered bucket %d of %s has malformed next-hop %q: %v", fgerr.ErrInvariant, index, inst.Key, nhStr, err)
		}

		bucketBank := bankOfIndex(inst.BankRanges, index)
		if bucketBank == -1 {
			return fmt.Errorf("%w: recovered bucket %d of %s has no owning bank", fgerr.ErrInvariant, index, inst.Key)
		}

		if err := c.rebalancer.Writer.WriteBucket(ctx, inst, index, nh); err != nil {
			return err
		}
		inst.AssignBucket(bucketBank, index, nh)

		realBank := bucketBank
		if member, ok := group.Members[nh.IP]; ok {
			realBank = member.Bank
		}
		if _, ok := inst.InactiveToActive[bucketBank]; !ok || realBank != bucketBank {
			inst.InactiveToActive[bucketBank] = realBank
		}
	}
	inst.RefreshActiveNextHops()
	return nil
}

// promote re-enters materialisation for an instance that previously
// degraded to a router-interface route, per spec.md §4.4's "Degradation
// and re-promotion" paragraph: the newly-resolved next-hop seeds bank
// activation, then every other resolved member follows the ordinary
// §4.2.2 path on its own subsequent event.
func (c *Controller) promote(ctx context.Context, inst *store.GroupInstance, group *store.GroupSpec, seed nhkey.Key) error {
	byBank := map[int][]nhkey.Key{}
	if member, ok := group.Members[seed.IP]; ok {
		byBank[member.Bank] = []nhkey.Key{seed}
	}

	fresh, err := c.materialise(ctx, inst.Key, group, byBank)
	if err != nil {
		return err
	}
	*inst = *fresh
	c.store.PutInstance(inst)
	return nil
}
