package rebalance

import (
	"context"
	"fmt"
	"sort"

	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// Rebalancer applies Delta changes to one bank of a GroupInstance,
// choosing among the four cases of SPEC_FULL.md §4.2.
type Rebalancer struct {
	Writer     Writer
	Asic       southbound.AsicGroup
	Interfaces southbound.InterfaceResolver
	StateDB    store.StateDB
}

// New builds a Rebalancer. interfaces and stateDB may be nil if the
// deployment never expects an all-banks-down degradation or warm-restart
// persistence respectively; both are exercised in tests via fakes.
func New(writer Writer, asic southbound.AsicGroup, interfaces southbound.InterfaceResolver, stateDB store.StateDB) *Rebalancer {
	return &Rebalancer{Writer: writer, Asic: asic, Interfaces: interfaces, StateDB: stateDB}
}

// Rebalance applies delta to bankID within inst, selecting the active-
// bank, activation, deactivation or re-delegation case per the shape of
// delta and the bank's current state.
func (r *Rebalancer) Rebalance(ctx context.Context, inst *store.GroupInstance, bankID int, delta Delta) error {
	if bankID < 0 || bankID >= len(inst.BankRanges) {
		return fmt.Errorf("%w: bank %d out of range for %s", fgerr.ErrInvariant, bankID, inst.Key)
	}

	wasActive := isBankActive(inst, bankID)
	continuing := len(delta.StillActive) > 0 || (len(delta.Adds) > 0 && len(delta.Dels) > 0)

	switch {
	case continuing:
		if err := r.rebalanceActiveBank(ctx, inst, bankID, delta); err != nil {
			return err
		}
		// Banks borrowing bankID's next-hops follow its new live set.
		for j, delegate := range inst.InactiveToActive {
			if j != bankID && delegate == bankID {
				if err := r.mirrorDelegateRange(ctx, inst, j, bankID); err != nil {
					return err
				}
			}
		}
		inst.RefreshActiveNextHops()
		return nil
	case wasActive && len(delta.Adds) == 0 && len(delta.Dels) > 0:
		return r.deactivateBank(ctx, inst, bankID)
	case !wasActive && len(delta.Adds) > 0:
		return r.activateBank(ctx, inst, bankID, delta)
	case !wasActive:
		return r.reDelegate(ctx, inst, bankID, delta)
	default:
		return nil
	}
}

func (r *Rebalancer) writeBucket(ctx context.Context, inst *store.GroupInstance, bankID, index int, nh nhkey.Key) error {
	if err := r.Writer.WriteBucket(ctx, inst, index, nh); err != nil {
		return err
	}
	inst.AssignBucket(bankID, index, nh)
	return nil
}

// rebalanceActiveBank implements §4.2.1: pairwise swap, then whichever of
// net-delete/net-add remains.
func (r *Rebalancer) rebalanceActiveBank(ctx context.Context, inst *store.GroupInstance, bankID int, delta Delta) error {
	adds := append([]nhkey.Key(nil), delta.Adds...)
	dels := append([]nhkey.Key(nil), delta.Dels...)
	stillActive := append([]nhkey.Key(nil), delta.StillActive...)

	for len(adds) > 0 && len(dels) > 0 {
		addNh, delNh := adds[0], dels[0]
		adds, dels = adds[1:], dels[1:]

		buckets := append([]int(nil), inst.BucketsOf(bankID, delNh)...)
		sort.Ints(buckets)
		for _, idx := range buckets {
			if err := r.writeBucket(ctx, inst, bankID, idx, addNh); err != nil {
				return err
			}
		}
		stillActive = append(stillActive, addNh)
	}
	inst.RefreshActiveNextHops()

	if len(dels) > 0 {
		if err := r.netDelete(ctx, inst, bankID, dels, stillActive); err != nil {
			return err
		}
		inst.RefreshActiveNextHops()
		return nil
	}

	if len(adds) > 0 {
		if err := r.netAdd(ctx, inst, bankID, adds, stillActive); err != nil {
			return err
		}
		inst.RefreshActiveNextHops()
	}

	return nil
}

// netDelete implements §4.2.1 phase 2: orphaned buckets from dels are
// round-robin-assigned to the surviving stillActive set, tracked with an
// expected-size/extras pair computed once from the bank's total bucket
// count, matching the original's exp_bucket_size/num_nhs_with_one_more
// bookkeeping. A survivor that already holds its full share is dropped
// from the candidates before any orphan is assigned.
func (r *Rebalancer) netDelete(ctx context.Context, inst *store.GroupInstance, bankID int, dels, stillActive []nhkey.Key) error {
	if len(stillActive) == 0 {
		return fmt.Errorf("%w: bank %d has no surviving next-hops to absorb net-delete", fgerr.ErrInvariant, bankID)
	}

	candidates := append([]nhkey.Key(nil), stillActive...)
	numBuckets := inst.BankRanges[bankID].Size()
	expSize := numBuckets / len(candidates)
	extras := numBuckets % len(candidates)

	// Survivors above expSize use up extras first; those at their full
	// share take no orphaned bucket.
	for _, nh := range candidates {
		if len(inst.BucketsOf(bankID, nh)) > expSize && extras > 0 {
			extras--
		}
	}
	kept := candidates[:0]
	for _, nh := range candidates {
		if size := len(inst.BucketsOf(bankID, nh)); size < expSize || (size == expSize && extras > 0) {
			kept = append(kept, nh)
		}
	}
	candidates = kept

	for _, delNh := range dels {
		orphaned := append([]int(nil), inst.BucketsOf(bankID, delNh)...)
		sort.Ints(orphaned)

		for i, idx := range orphaned {
			if len(candidates) == 0 {
				return fmt.Errorf("%w: bank %d ran out of round-robin candidates during net-delete", fgerr.ErrInvariant, bankID)
			}
			rrIdx := i % len(candidates)
			roundRobinNh := candidates[rrIdx]

			if err := r.writeBucket(ctx, inst, bankID, idx, roundRobinNh); err != nil {
				return err
			}

			newSize := len(inst.BucketsOf(bankID, roundRobinNh))
			target := expSize
			if extras > 0 {
				target = expSize + 1
			}
			if newSize == target {
				candidates = append(candidates[:rrIdx], candidates[rrIdx+1:]...)
				if extras > 0 {
					extras--
				}
			}
			// newSize > target is a drift condition; the bucket write has
			// already happened and is left as-is (spec.md §4.2.1 phase 2:
			// "logged but otherwise skipped").
		}
	}

	return nil
}

// netAdd implements §4.2.1 phase 3: each new next-hop steals buckets from
// the surviving set, round-robin, until it reaches its target share. A
// donor never goes below expSize; if a donor would drop to zero buckets
// the rebalance fails rather than resizing the group.
func (r *Rebalancer) netAdd(ctx context.Context, inst *store.GroupInstance, bankID int, adds, stillActive []nhkey.Key) error {
	donors := append([]nhkey.Key(nil), stillActive...)
	if len(donors) == 0 {
		return fmt.Errorf("%w: bank %d has no existing next-hops to steal buckets from", fgerr.ErrInvariant, bankID)
	}

	numBuckets := inst.BankRanges[bankID].Size()
	totalNhs := len(stillActive) + len(adds)
	expSize := numBuckets / totalNhs
	extras := numBuckets % totalNhs

	donorIdx := 0
	for _, addNh := range adds {
		target := expSize
		if extras > 0 {
			target = expSize + 1
			extras--
		}

		for len(inst.BucketsOf(bankID, addNh)) < target {
			if len(donors) == 0 {
				return fmt.Errorf("%w: bank %d ran out of donors during net-add", fgerr.ErrInvariant, bankID)
			}
			if donorIdx >= len(donors) {
				donorIdx = 0
			}
			donor := donors[donorIdx]
			donorBuckets := inst.BucketsOf(bankID, donor)
			if len(donorBuckets) <= 1 {
				return fmt.Errorf("%w: donor %s in bank %d has too few buckets to steal from", fgerr.ErrInvariant, donor, bankID)
			}

			stolen := donorBuckets[len(donorBuckets)-1]
			if err := r.writeBucket(ctx, inst, bankID, stolen, addNh); err != nil {
				return err
			}

			if len(inst.BucketsOf(bankID, donor)) <= expSize {
				donors = append(donors[:donorIdx], donors[donorIdx+1:]...)
				continue
			}
			donorIdx++
		}
	}

	return nil
}

// activateBank implements §4.2.2: an inactive bank with adds becomes
// active in its own right.
func (r *Rebalancer) activateBank(ctx context.Context, inst *store.GroupInstance, bankID int, delta Delta) error {
	if len(delta.Adds) == 0 {
		return fmt.Errorf("%w: bank %d activation requires at least one next-hop", fgerr.ErrInvariant, bankID)
	}

	inst.BucketMap[bankID] = make(map[nhkey.Key][]int)
	rng := inst.BankRanges[bankID]
	k := len(delta.Adds)

	for i := 0; i < rng.Size(); i++ {
		idx := rng.Start + i
		nh := delta.Adds[i%k]
		if err := r.writeBucket(ctx, inst, bankID, idx, nh); err != nil {
			return err
		}
	}

	inst.InactiveToActive[bankID] = bankID
	inst.RefreshActiveNextHops()
	return nil
}

// deactivateBank implements §4.2.3: bankID's live set just emptied. It
// delegates to the lowest-indexed still-active bank, mirroring that
// bank's combined live set into bankID's own range, or degrades the whole
// group to a router-interface route if no bank is active anywhere. Since
// bankID just stopped being a valid delegate target, every other bank
// that was delegating to it is re-walked too, matching the original's
// compute_and_set_hash_bucket_changes loop over all banks on every event.
func (r *Rebalancer) deactivateBank(ctx context.Context, inst *store.GroupInstance, bankID int) error {
	delegate := -1
	for i := range inst.BankRanges {
		if i == bankID {
			continue
		}
		if isBankActive(inst, i) && bankHasMembers(inst, i) {
			delegate = i
			break
		}
	}

	if delegate == -1 {
		return r.degradeAllBanksDown(ctx, inst)
	}

	if err := r.mirrorDelegateRange(ctx, inst, bankID, delegate); err != nil {
		return err
	}
	inst.InactiveToActive[bankID] = delegate
	inst.RefreshActiveNextHops()

	return r.cascadeDelegates(ctx, inst, bankID)
}

// cascadeDelegates re-validates every bank whose InactiveToActive entry
// pointed at flippedBank, which just transitioned out of self-delegated
// active status. A bank stranded on a now-inactive delegate is re-run
// through reDelegate so it either follows the delegate's own new
// delegate or picks one of its own (§4.2.4). Safe against recursion:
// deactivateBank only ever strands banks that were pointing at an
// active bank, and a bank already inactive can never be a delegate
// target itself, so the affected set strictly shrinks each call.
func (r *Rebalancer) cascadeDelegates(ctx context.Context, inst *store.GroupInstance, flippedBank int) error {
	var affected []int
	for j, delegate := range inst.InactiveToActive {
		if j != flippedBank && delegate == flippedBank {
			affected = append(affected, j)
		}
	}
	sort.Ints(affected)

	for _, j := range affected {
		if err := r.reDelegate(ctx, inst, j, Delta{}); err != nil {
			return err
		}
	}
	return nil
}

// reDelegate implements §4.2.4: an already-inactive bank is touched by an
// event. If its current delegate still has live members, the delegate is
// rebalanced (which also refreshes bankID's mirrored range); otherwise
// bankID re-runs deactivation to pick a new delegate or degrade.
func (r *Rebalancer) reDelegate(ctx context.Context, inst *store.GroupInstance, bankID int, delta Delta) error {
	delegate, ok := inst.InactiveToActive[bankID]
	if ok && delegate != bankID && isBankActive(inst, delegate) && bankHasMembers(inst, delegate) {
		if err := r.rebalanceActiveBank(ctx, inst, delegate, delta); err != nil {
			return err
		}
		return r.mirrorDelegateRange(ctx, inst, bankID, delegate)
	}
	return r.deactivateBank(ctx, inst, bankID)
}

// mirrorDelegateRange re-round-robins bankID's own bucket range over
// delegate's current active set, keeping bankID's borrowed buckets in
// sync with the delegate's live membership (§4.2.3 step 2).
func (r *Rebalancer) mirrorDelegateRange(ctx context.Context, inst *store.GroupInstance, bankID, delegate int) error {
	combined := activeNextHopsOf(inst, delegate)
	if len(combined) == 0 {
		return r.degradeAllBanksDown(ctx, inst)
	}

	rng := inst.BankRanges[bankID]
	k := len(combined)
	for i := 0; i < rng.Size(); i++ {
		idx := rng.Start + i
		nh := combined[i%k]
		if err := r.writeBucket(ctx, inst, bankID, idx, nh); err != nil {
			return err
		}
	}
	return nil
}

// degradeAllBanksDown implements §4.2.3 step 3: no bank anywhere has a
// live member. The group is torn down and the route repointed at a plain
// router-interface object.
func (r *Rebalancer) degradeAllBanksDown(ctx context.Context, inst *store.GroupInstance) error {
	if inst.AsicGroupHandle != "" {
		if err := r.Asic.GroupDestroy(ctx, inst.AsicGroupHandle); err != nil {
			return fmt.Errorf("%w: destroying degraded group for %s: %v", fgerr.ErrTransient, inst.Key, err)
		}
	}

	handle, ok := r.Interfaces.RouterInterfaceHandle(inst.Key.VRF)
	if !ok {
		return fmt.Errorf("%w: no router-interface handle for vrf %s", fgerr.ErrFatal, inst.Key.VRF)
	}
	if err := r.Asic.RouteSetNextHop(ctx, inst.Key.VRF, inst.Key.Prefix, handle); err != nil {
		return fmt.Errorf("%w: repointing %s at router interface: %v", fgerr.ErrTransient, inst.Key, err)
	}

	for i := range inst.BucketMap {
		inst.BucketMap[i] = make(map[nhkey.Key][]int)
	}
	inst.BucketOwner = make([]nhkey.Key, inst.RealBucketCount)
	inst.MemberHandles = make([]string, inst.RealBucketCount)
	inst.ActiveNextHops = make(map[nhkey.Key]struct{})
	inst.InactiveToActive = make(map[int]int)
	inst.AsicGroupHandle = ""
	inst.PointsToInterface = true

	if r.StateDB != nil {
		if err := r.StateDB.DelRow(store.RouteTable, inst.Key.Prefix); err != nil {
			return fmt.Errorf("%w: clearing state-db record for %s: %v", fgerr.ErrTransient, inst.Key, err)
		}
	}

	return nil
}

func isBankActive(inst *store.GroupInstance, bankID int) bool {
	delegate, ok := inst.InactiveToActive[bankID]
	return ok && delegate == bankID
}

func bankHasMembers(inst *store.GroupInstance, bankID int) bool {
	for _, buckets := range inst.BucketMap[bankID] {
		if len(buckets) > 0 {
			return true
		}
	}
	return false
}

func activeNextHopsOf(inst *store.GroupInstance, bankID int) []nhkey.Key {
	var out []nhkey.Key
	for nh, buckets := range inst.BucketMap[bankID] {
		if len(buckets) > 0 {
			out = append(out, nh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
