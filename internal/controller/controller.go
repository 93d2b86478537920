// Package controller implements the FG controller (SPEC_FULL.md §4.4): the
// single-threaded cooperative event pump driving materialisation,
// rebalancing, degradation and config ingest for every fine-grained group.
// Grounded on modules/backendscheduler.BackendScheduler's services.Service
// embedding, ticker-driven running loop and structured-logging style.
package controller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/sonic-net/fgnhgctl/internal/config"
	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/fglog"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/planner"
	"github.com/sonic-net/fgnhgctl/internal/rebalance"
	"github.com/sonic-net/fgnhgctl/internal/recovery"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// Controller owns every materialised fine-grained group and funnels every
// mutation through one event-pump goroutine (SPEC_FULL.md §5).
type Controller struct {
	services.Service

	cfg config.Config

	store      *store.Store
	rebalancer *rebalance.Rebalancer
	asic       southbound.AsicGroup
	counters   southbound.ResourceCounters
	neighbors  southbound.NeighborResolver
	interfaces southbound.InterfaceResolver
	stateDB    store.StateDB

	recovered *recovery.Map

	eventCh chan *request
	retryMu retryQueue
}

// New builds a Controller. recovered may be nil if warm-restart recovery
// was skipped (cold start); the caller is responsible for running
// recovery.Loader.Load before New if replay is desired, matching
// the ordering guarantee of spec.md §5 ("warm-restart replay must
// complete before the first live event for any given prefix").
func New(
	cfg config.Config,
	st *store.Store,
	asic southbound.AsicGroup,
	counters southbound.ResourceCounters,
	neighbors southbound.NeighborResolver,
	interfaces southbound.InterfaceResolver,
	stateDB store.StateDB,
	recovered *recovery.Map,
) *Controller {
	writer := &rebalance.StateDBWriter{Asic: asic, Neighbors: neighbors, StateDB: stateDB}
	c := &Controller{
		cfg:        cfg,
		store:      st,
		rebalancer: rebalance.New(writer, asic, interfaces, stateDB),
		asic:       asic,
		counters:   counters,
		neighbors:  neighbors,
		interfaces: interfaces,
		stateDB:    stateDB,
		recovered:  recovered,
		eventCh:    make(chan *request),
	}
	c.Service = services.NewBasicService(c.starting, c.running, c.stopping)
	return c
}

func (c *Controller) starting(_ context.Context) error {
	level.Info(fglog.Logger).Log("msg", "fg controller starting")
	return nil
}

func (c *Controller) stopping(_ error) error {
	level.Info(fglog.Logger).Log("msg", "fg controller stopping")
	return nil
}

func (c *Controller) running(ctx context.Context) error {
	level.Info(fglog.Logger).Log("msg", "fg controller running")

	retryInterval := c.cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}
	retryTicker := time.NewTicker(retryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.eventCh:
			c.handle(ctx, req)
		case <-retryTicker.C:
			c.drainRetryQueue(ctx)
		}
	}
}

// requestKind names the six public operations of spec.md §4.4.
type requestKind int

const (
	reqSetRoute requestKind = iota
	reqRemoveRoute
	reqNextHopUp
	reqNextHopDown
	reqOnLinkOper
	reqConfigUpdate
)

// request is the event-pump's single wire format: every public method
// builds one, sends it on eventCh, and (unless it is a requeued retry)
// waits on reply.
type request struct {
	kind requestKind

	vrf, prefix string
	nhSet       []nhkey.Key

	nh nhkey.Key

	port string
	up   bool

	table string
	kv    config.KeyOpFields

	reply chan response
}

type response struct {
	nhID    string
	changed bool
	err     error
}

func (c *Controller) do(ctx context.Context, req *request) response {
	req.reply = make(chan response, 1)
	select {
	case c.eventCh <- req:
	case <-ctx.Done():
		return response{err: ctx.Err()}
	}
	select {
	case resp := <-req.reply:
		return resp
	case <-ctx.Done():
		return response{err: ctx.Err()}
	}
}

// SetRoute drives spec.md §4.4's setRoute operation. nhID is the ASIC
// group handle, or the router-interface handle if the route degraded.
func (c *Controller) SetRoute(ctx context.Context, vrf, prefix string, nhSet []nhkey.Key) (string, bool, error) {
	resp := c.do(ctx, &request{kind: reqSetRoute, vrf: vrf, prefix: prefix, nhSet: nhSet})
	return resp.nhID, resp.changed, resp.err
}

// RemoveRoute drives spec.md §4.4's removeRoute operation.
func (c *Controller) RemoveRoute(ctx context.Context, vrf, prefix string) error {
	return c.do(ctx, &request{kind: reqRemoveRoute, vrf: vrf, prefix: prefix}).err
}

// NextHopUp drives spec.md §4.4's onNextHopUp operation.
func (c *Controller) NextHopUp(ctx context.Context, nh nhkey.Key) error {
	return c.do(ctx, &request{kind: reqNextHopUp, nh: nh}).err
}

// NextHopDown drives spec.md §4.4's onNextHopDown operation.
func (c *Controller) NextHopDown(ctx context.Context, nh nhkey.Key) error {
	return c.do(ctx, &request{kind: reqNextHopDown, nh: nh}).err
}

// OnLinkOper drives spec.md §4.4's onLinkOper operation.
func (c *Controller) OnLinkOper(ctx context.Context, port string, up bool) error {
	return c.do(ctx, &request{kind: reqOnLinkOper, port: port, up: up}).err
}

// ConfigUpdate decodes one config-delta tuple for table (FG_NHG,
// FG_NHG_PREFIX or FG_NHG_MEMBER) and, on success, drives whatever
// materialisation/rebalance follows from it.
func (c *Controller) ConfigUpdate(ctx context.Context, table string, kv config.KeyOpFields) error {
	return c.do(ctx, &request{kind: reqConfigUpdate, table: table, kv: kv}).err
}

func (c *Controller) handle(ctx context.Context, req *request) {
	var resp response
	switch req.kind {
	case reqSetRoute:
		nhID, changed, err := c.setRoute(ctx, req.vrf, req.prefix, req.nhSet)
		resp = response{nhID: nhID, changed: changed, err: err}
	case reqRemoveRoute:
		resp = response{err: c.removeRoute(ctx, req.vrf, req.prefix)}
	case reqNextHopUp:
		resp = response{err: c.onNextHopUp(ctx, req.nh)}
	case reqNextHopDown:
		resp = response{err: c.onNextHopDown(ctx, req.nh)}
	case reqOnLinkOper:
		resp = response{err: c.onLinkOper(ctx, req.port, req.up)}
	case reqConfigUpdate:
		resp = response{err: c.onConfigUpdate(ctx, req.table, req.kv)}
	default:
		resp = response{err: fmt.Errorf("controller: unknown request kind %d", req.kind)}
	}

	switch fgerr.ClassOf(resp.err) {
	case fgerr.KindTransient:
		c.retryMu.push(req)
	case fgerr.KindInvariant:
		level.Warn(fglog.Logger).Log("msg", "request failed on internal invariant", "err", resp.err)
	}

	if req.reply != nil {
		req.reply <- resp
	}
}

// isFineGrained implements spec.md §4.4's read-only predicate.
func (c *Controller) isFineGrained(vrf, prefix string, nhSet []nhkey.Key) bool {
	if group, ok := c.store.GroupForPrefix(prefix); ok {
		return group.MatchMode == store.RouteBased
	}

	if len(nhSet) == 0 {
		return false
	}

	var name string
	for i, nh := range nhSet {
		group, ok := c.store.GroupForNextHop(nh.IP)
		if !ok || group.MatchMode != store.NexthopBased {
			return false
		}
		if i == 0 {
			name = group.Name
		} else if group.Name != name {
			return false
		}
	}
	return true
}

// groupFor resolves the governing GroupSpec for a materialised instance,
// trying route-based binding first and falling back to the instance's
// declared next-hop set for next-hop-based matching.
func (c *Controller) groupFor(inst *store.GroupInstance) (*store.GroupSpec, bool) {
	if group, ok := c.store.GroupForPrefix(inst.Key.Prefix); ok {
		return group, true
	}
	for _, nh := range inst.NhgKey {
		if group, ok := c.store.GroupForNextHop(nh.IP); ok {
			return group, true
		}
	}
	return nil, false
}

// filterNextHops implements spec.md §4.4's input filtering rules (a)-(d).
func filterNextHops(group *store.GroupSpec, neighbors southbound.NeighborResolver, nhSet []nhkey.Key) []nhkey.Key {
	var out []nhkey.Key
	for _, nh := range nhSet {
		if !neighbors.HasNextHop(nh.IP, nh.Interface) {
			continue
		}
		member, ok := group.Members[nh.IP]
		if !ok {
			continue
		}
		if member.HasLink && !member.LinkOperUp {
			continue
		}
		if neighbors.IsInterfaceDown(nh.IP, nh.Interface) {
			continue
		}
		out = append(out, nh)
	}
	return out
}

// bankMemberCounts returns the per-bank declared member count used by
// planner.Plan, indexed 0..max(bank).
func bankMemberCounts(group *store.GroupSpec) []int {
	maxBank := -1
	for _, m := range group.Members {
		if m.Bank > maxBank {
			maxBank = m.Bank
		}
	}
	counts := make([]int, maxBank+1)
	for _, m := range group.Members {
		counts[m.Bank]++
	}
	return counts
}

// bankOfIndex returns the bank owning bucket index within ranges.
func bankOfIndex(ranges []planner.BankRange, index int) int {
	for i, r := range ranges {
		if index >= r.Start && index <= r.End {
			return i
		}
	}
	return -1
}

// resolvedByBank groups every resolved (filtered) next-hop of group by its
// configured bank.
func resolvedByBank(group *store.GroupSpec, filtered []nhkey.Key) map[int][]nhkey.Key {
	out := make(map[int][]nhkey.Key)
	for _, nh := range filtered {
		member, ok := group.Members[nh.IP]
		if !ok {
			continue
		}
		out[member.Bank] = append(out[member.Bank], nh)
	}
	return out
}

// activeNextHops returns the bank's currently live next-hop set. A bank
// delegated to another bank has none: the next-hops mirrored into its
// range belong to the delegate.
func activeNextHops(inst *store.GroupInstance, bankID int) map[nhkey.Key]struct{} {
	out := make(map[nhkey.Key]struct{})
	if delegate, ok := inst.InactiveToActive[bankID]; ok && delegate != bankID {
		return out
	}
	for nh, buckets := range inst.BucketMap[bankID] {
		if len(buckets) > 0 {
			out[nh] = struct{}{}
		}
	}
	return out
}

// computeBankDelta diffs want against bankID's current live set.
func computeBankDelta(inst *store.GroupInstance, bankID int, want []nhkey.Key) rebalance.Delta {
	have := activeNextHops(inst, bankID)
	wantSet := make(map[nhkey.Key]struct{}, len(want))
	for _, nh := range want {
		wantSet[nh] = struct{}{}
	}

	var delta rebalance.Delta
	for nh := range wantSet {
		if _, ok := have[nh]; ok {
			delta.StillActive = append(delta.StillActive, nh)
		} else {
			delta.Adds = append(delta.Adds, nh)
		}
	}
	for nh := range have {
		if _, ok := wantSet[nh]; !ok {
			delta.Dels = append(delta.Dels, nh)
		}
	}

	// have and wantSet are maps, so the ranges above visit next-hops in
	// random order; sort each slice so the pairwise-swap phase of
	// rebalanceActiveBank pairs them up deterministically run to run.
	sortKeys(delta.Adds)
	sortKeys(delta.Dels)
	sortKeys(delta.StillActive)

	return delta
}

func sortKeys(keys []nhkey.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

func deltaIsEmpty(d rebalance.Delta) bool {
	return len(d.Adds) == 0 && len(d.Dels) == 0
}
