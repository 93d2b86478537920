package controller

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/sonic-net/fgnhgctl/internal/config"
	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/fglog"
	"github.com/sonic-net/fgnhgctl/internal/metrics"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/rebalance"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// rebalanceBank funnels every live (post-materialisation) bank mutation
// through the rebalancer, detecting the PointsToInterface false->true edge
// so the group-resource counter is decremented exactly once per all-banks-
// down degradation (SPEC_FULL.md §4.2.3, §6).
func (c *Controller) rebalanceBank(ctx context.Context, inst *store.GroupInstance, bankID int, delta rebalance.Delta) error {
	wasCounted := !inst.PointsToInterface
	if err := c.rebalancer.Rebalance(ctx, inst, bankID, delta); err != nil {
		metrics.RebalanceFailures.WithLabelValues(fmt.Sprint(fgerr.ClassOf(err))).Inc()
		return err
	}
	if wasCounted && inst.PointsToInterface {
		c.counters.Dec(southbound.ResourceGroup)
		metrics.Degradations.Inc()
		metrics.GroupsMaterialised.Dec()
		level.Info(fglog.Logger).Log("msg", "fine-grained group degraded to router-interface route", "prefix", inst.Key.Prefix, "vrf", inst.Key.VRF)
	}
	return nil
}

// setRoute implements spec.md §4.4's setRoute operation.
func (c *Controller) setRoute(ctx context.Context, vrf, prefix string, nhSet []nhkey.Key) (string, bool, error) {
	if !c.isFineGrained(vrf, prefix, nhSet) {
		return "", false, nil
	}

	group, ok := c.store.GroupForPrefix(prefix)
	if !ok {
		// Next-hop-based matching: every nh maps to the same group.
		for _, nh := range nhSet {
			if g, ok := c.store.GroupForNextHop(nh.IP); ok {
				group = g
				break
			}
		}
	}
	if group == nil {
		return "", false, nil
	}

	filtered := filterNextHops(group, c.neighbors, nhSet)
	key := store.VrfPrefix{VRF: vrf, Prefix: prefix}

	inst, exists := c.store.Instance(key)
	if !exists {
		if len(filtered) == 0 {
			return "", false, nil
		}
		newInst, err := c.materialise(ctx, key, group, resolvedByBank(group, filtered))
		if err != nil {
			return "", false, err
		}
		return newInst.AsicGroupHandle, true, nil
	}

	if inst.PointsToInterface {
		if len(filtered) == 0 {
			handle, _ := c.interfaces.RouterInterfaceHandle(vrf)
			return handle, false, nil
		}
		if err := c.promote(ctx, inst, group, filtered[0]); err != nil {
			return "", false, err
		}
		filtered = filtered[1:]
	}

	changed := false
	byBank := resolvedByBank(group, filtered)
	for bankID := range inst.BankRanges {
		if inst.PointsToInterface {
			break
		}
		delta := computeBankDelta(inst, bankID, byBank[bankID])
		if deltaIsEmpty(delta) {
			continue
		}
		if err := c.rebalanceBank(ctx, inst, bankID, delta); err != nil {
			return "", changed, err
		}
		changed = true
	}

	if inst.PointsToInterface {
		handle, _ := c.interfaces.RouterInterfaceHandle(vrf)
		return handle, changed, nil
	}
	return inst.AsicGroupHandle, changed, nil
}

// removeRoute implements spec.md §4.4's removeRoute operation.
func (c *Controller) removeRoute(ctx context.Context, vrf, prefix string) error {
	key := store.VrfPrefix{VRF: vrf, Prefix: prefix}
	inst, ok := c.store.Instance(key)
	if !ok {
		return nil
	}

	if !inst.PointsToInterface {
		if inst.AsicGroupHandle != "" {
			if err := c.asic.GroupDestroy(ctx, inst.AsicGroupHandle); err != nil {
				return fmt.Errorf("%w: destroying group for %s: %v", fgerr.ErrTransient, key, err)
			}
		}
		c.counters.Dec(southbound.ResourceGroup)
		metrics.GroupsMaterialised.Dec()
	}

	for _, nh := range inst.NhgKey {
		c.neighbors.DecRefCount(nh.IP, nh.Interface)
	}

	if c.stateDB != nil {
		if err := c.stateDB.DelRow(store.RouteTable, prefix); err != nil {
			return fmt.Errorf("%w: clearing state-db record for %s: %v", fgerr.ErrTransient, key, err)
		}
	}

	c.store.DeleteInstance(key)
	return nil
}

// onNextHopUp implements spec.md §4.4's onNextHopUp operation: every
// instance declaring nh but not currently carrying it active runs the
// §4.2 add path, or re-promotes if degraded.
func (c *Controller) onNextHopUp(ctx context.Context, nh nhkey.Key) error {
	c.neighbors.IncRefCount(nh.IP, nh.Interface)

	for _, inst := range c.store.InstancesForNextHop(nh) {
		if _, active := inst.ActiveNextHops[nh]; active {
			continue
		}

		group, ok := c.groupFor(inst)
		if !ok {
			continue
		}

		if inst.PointsToInterface {
			if err := c.promote(ctx, inst, group, nh); err != nil {
				return err
			}
			continue
		}

		member, ok := group.Members[nh.IP]
		if !ok {
			continue
		}

		have := activeNextHops(inst, member.Bank)
		stillActive := make([]nhkey.Key, 0, len(have))
		for existing := range have {
			stillActive = append(stillActive, existing)
		}
		sortKeys(stillActive)

		delta := rebalance.Delta{Adds: []nhkey.Key{nh}, StillActive: stillActive}
		if err := c.rebalanceBank(ctx, inst, member.Bank, delta); err != nil {
			return err
		}
	}
	return nil
}

// onNextHopDown implements spec.md §4.4's onNextHopDown operation.
func (c *Controller) onNextHopDown(ctx context.Context, nh nhkey.Key) error {
	c.neighbors.DecRefCount(nh.IP, nh.Interface)

	for _, inst := range c.store.InstancesForNextHop(nh) {
		if inst.PointsToInterface {
			continue
		}
		if _, active := inst.ActiveNextHops[nh]; !active {
			continue
		}

		group, ok := c.groupFor(inst)
		if !ok {
			continue
		}
		member, ok := group.Members[nh.IP]
		if !ok {
			continue
		}

		have := activeNextHops(inst, member.Bank)
		stillActive := make([]nhkey.Key, 0, len(have))
		for existing := range have {
			if existing == nh {
				continue
			}
			stillActive = append(stillActive, existing)
		}
		sortKeys(stillActive)

		delta := rebalance.Delta{Dels: []nhkey.Key{nh}, StillActive: stillActive}
		if err := c.rebalanceBank(ctx, inst, member.Bank, delta); err != nil {
			return err
		}
	}
	return nil
}

// onLinkOper implements spec.md §4.4's onLinkOper operation.
func (c *Controller) onLinkOper(ctx context.Context, port string, up bool) error {
	for _, group := range c.store.GroupsWithMembersOnLink(port) {
		for ip, member := range group.Members {
			if member.Link != port {
				continue
			}
			member.LinkOperUp = up
			group.Members[ip] = member

			nh := nhkey.New(ip, "")
			if _, resolved := c.neighbors.Resolve(nh.IP, nh.Interface); !resolved {
				continue
			}

			var err error
			if up {
				err = c.onNextHopUp(ctx, nh)
			} else {
				err = c.onNextHopDown(ctx, nh)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// onConfigUpdate decodes one config-delta tuple and, on success, drives
// whatever materialisation/rebalance/teardown follows from the resulting
// config.Event.
func (c *Controller) onConfigUpdate(ctx context.Context, table string, kv config.KeyOpFields) error {
	ing := config.NewIngester(c.store)

	var (
		ev  config.Event
		err error
	)
	switch table {
	case config.TableFgNhg:
		ev, err = ing.ApplyFgNhg(kv)
	case config.TableFgNhgPrefix:
		ev, err = ing.ApplyFgNhgPrefix(kv)
	case config.TableFgNhgMember:
		ev, err = ing.ApplyFgNhgMember(kv)
	default:
		return fmt.Errorf("%w: unknown config table %q", fgerr.ErrConfig, table)
	}

	if err != nil {
		if fgerr.ClassOf(err) == fgerr.KindConfig {
			level.Warn(fglog.Logger).Log("msg", "dropping invalid config delta", "table", table, "key", kv.Key, "err", err)
			return nil
		}
		return err
	}

	switch ev.Kind {
	case config.EventPrefixBound:
		return c.reconcilePrefix(ctx, ev.GroupName, ev.Prefix)
	case config.EventPrefixUnbound:
		return c.removeRoute(ctx, "", ev.Prefix)
	case config.EventMemberAdded:
		return c.onNextHopUp(ctx, nhkey.New(ev.NextHopIP, ""))
	case config.EventMemberRemoved:
		return c.onNextHopDown(ctx, nhkey.New(ev.NextHopIP, ""))
	default:
		return nil
	}
}

// reconcilePrefix re-runs setRoute for a prefix that just gained a group
// binding, seeding nhSet from every member IP the group already knows
// about so a FG_NHG_PREFIX arriving after its members still materialises
// immediately.
func (c *Controller) reconcilePrefix(ctx context.Context, groupName, prefix string) error {
	group, ok := c.store.Group(groupName)
	if !ok {
		return nil
	}
	_, _, err := c.setRoute(ctx, "", prefix, declaredNextHops(group))
	return err
}
