// Package store holds the authoritative in-memory model of every
// fine-grained next-hop group: bank ranges, the bucket->next-hop map, the
// active-nexthop set and the inactive-to-active bank delegation. It is
// exercised exclusively from the controller's single event-pump goroutine;
// the RWMutex it carries exists only to protect the concurrent read path
// used by the HTTP status handler (see SPEC_FULL.md §5).
package store

import (
	"fmt"
	"sync"

	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/planner"
)

// VrfPrefix identifies a route as the pair the ASIC southbound binding
// programs against.
type VrfPrefix struct {
	VRF    string
	Prefix string
}

func (k VrfPrefix) String() string {
	return k.VRF + ":" + k.Prefix
}

// GroupInstance is the live ASIC group materialised for one (vrf, prefix).
type GroupInstance struct {
	Key VrfPrefix

	AsicGroupHandle string
	RealBucketCount int
	BankRanges      []planner.BankRange

	// BucketMap[bank][nh] is the set of bucket indices, within that
	// bank's range, currently assigned to nh. A bucket index only ever
	// appears in one (bank, nh) pair at a time (I2).
	BucketMap []map[nhkey.Key][]int

	// BucketOwner is the flat index->nh view of BucketMap, kept in sync
	// by every mutation so I2 can be checked in O(1) per bucket.
	BucketOwner []nhkey.Key

	// MemberHandles[i] is the ASIC group-member handle bound to bucket i.
	MemberHandles []string

	ActiveNextHops map[nhkey.Key]struct{}

	// InactiveToActive[bank] names the bank whose live next-hops
	// currently occupy bank's bucket range (I4). A self-mapped bank
	// (InactiveToActive[b] == b) is active in its own right.
	InactiveToActive map[int]int

	// NhgKey is the full declared next-hop set for the route, independent
	// of which members are currently resolved/active.
	NhgKey []nhkey.Key

	PointsToInterface bool
}

// NewGroupInstance builds an instance with empty per-bank state for the
// given bank ranges.
func NewGroupInstance(key VrfPrefix, bankRanges []planner.BankRange, realBucketCount int) *GroupInstance {
	bucketMap := make([]map[nhkey.Key][]int, len(bankRanges))
	for i := range bucketMap {
		bucketMap[i] = make(map[nhkey.Key][]int)
	}
	return &GroupInstance{
		Key:              key,
		RealBucketCount:  realBucketCount,
		BankRanges:       bankRanges,
		BucketMap:        bucketMap,
		BucketOwner:      make([]nhkey.Key, realBucketCount),
		MemberHandles:    make([]string, realBucketCount),
		ActiveNextHops:   make(map[nhkey.Key]struct{}),
		InactiveToActive: make(map[int]int),
	}
}

// AssignBucket records that bucket index now belongs to nh within bankID,
// removing it from its previous owner's set first. Callers (the
// rebalancer) are responsible for the matching ASIC/state-DB write; this
// only updates the in-memory model.
func (g *GroupInstance) AssignBucket(bankID, index int, nh nhkey.Key) {
	if prev := g.BucketOwner[index]; prev != (nhkey.Key{}) {
		g.removeBucketFromOwner(prev, index)
	}
	g.BucketMap[bankID][nh] = append(g.BucketMap[bankID][nh], index)
	g.BucketOwner[index] = nh
	g.ActiveNextHops[nh] = struct{}{}
}

func (g *GroupInstance) removeBucketFromOwner(nh nhkey.Key, index int) {
	for bankID, m := range g.BucketMap {
		set, ok := m[nh]
		if !ok {
			continue
		}
		for i, idx := range set {
			if idx == index {
				m[nh] = append(set[:i], set[i+1:]...)
				if len(m[nh]) == 0 {
					delete(m, nh)
				}
				g.BucketMap[bankID] = m
				return
			}
		}
	}
}

// BucketsOf returns the bucket indices bankID currently assigns to nh.
func (g *GroupInstance) BucketsOf(bankID int, nh nhkey.Key) []int {
	return g.BucketMap[bankID][nh]
}

// RefreshActiveNextHops recomputes ActiveNextHops from BucketMap, enforcing
// I5 (nh is active iff at least one bucket points at it).
func (g *GroupInstance) RefreshActiveNextHops() {
	active := make(map[nhkey.Key]struct{})
	for _, m := range g.BucketMap {
		for nh, buckets := range m {
			if len(buckets) > 0 {
				active[nh] = struct{}{}
			}
		}
	}
	g.ActiveNextHops = active
}

// Store owns every configured FG_NHG group and every materialised instance.
type Store struct {
	mu sync.RWMutex

	groupsByName map[string]*GroupSpec
	instances    map[VrfPrefix]*GroupInstance
	prefixToName map[string]string // prefix -> group name, matchMode=prefix
	nhToName     map[string]string // next-hop ip -> group name, matchMode=nexthop
}

// GroupSpec is the store's view of an operator-declared FG_NHG group,
// re-exported here rather than imported from internal/config to avoid a
// dependency cycle (config.Ingester feeds the store, not the reverse).
type GroupSpec struct {
	Name                  string
	ConfiguredBucketCount int
	MatchMode             MatchMode
	Members               map[string]MemberInfo // ip -> info
	Prefixes              map[string]struct{}
}

// MatchMode selects how a route is matched to its FG_NHG group.
type MatchMode int

const (
	// RouteBased matches via the FG_NHG_PREFIX table (the default).
	RouteBased MatchMode = iota
	// NexthopBased matches when every next-hop in the route resolves to
	// a member of the same group.
	NexthopBased
)

// MemberInfo is one member's bank assignment and optional link tracking.
type MemberInfo struct {
	Bank         int
	Link         string
	LinkOperUp   bool
	HasLink      bool
	InterfaceIPs []string
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		groupsByName: make(map[string]*GroupSpec),
		instances:    make(map[VrfPrefix]*GroupInstance),
		prefixToName: make(map[string]string),
		nhToName:     make(map[string]string),
	}
}

// UpsertGroup inserts a new group spec. Redefinition of an existing name is
// the caller's responsibility to reject (config.Ingester does, per the
// "redefinition is ignored with a warning" rule).
func (s *Store) UpsertGroup(spec *GroupSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupsByName[spec.Name] = spec
}

// Group looks up a group spec by name.
func (s *Store) Group(name string) (*GroupSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groupsByName[name]
	return g, ok
}

// DeleteGroup removes a group spec. The caller must have already verified
// it has no attached prefixes or members.
func (s *Store) DeleteGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupsByName, name)
}

// BindPrefix records that prefix is fine-grained via group name.
func (s *Store) BindPrefix(prefix, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixToName[prefix] = name
}

// UnbindPrefix removes a prefix's group binding.
func (s *Store) UnbindPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefixToName, prefix)
}

// GroupForPrefix resolves a prefix to its bound group, if any.
func (s *Store) GroupForPrefix(prefix string) (*GroupSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.prefixToName[prefix]
	if !ok {
		return nil, false
	}
	return s.groupsByName[name], true
}

// BindNextHop records that a next-hop IP belongs to group name, used for
// NexthopBased matching.
func (s *Store) BindNextHop(ip, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nhToName[ip] = name
}

// UnbindNextHop removes a next-hop's group binding.
func (s *Store) UnbindNextHop(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nhToName, ip)
}

// GroupForNextHop resolves a next-hop IP to its bound group, if any.
func (s *Store) GroupForNextHop(ip string) (*GroupSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.nhToName[ip]
	if !ok {
		return nil, false
	}
	return s.groupsByName[name], true
}

// GroupContainingMember scans every configured group for one that has ip
// as a member, regardless of match mode — used when a FG_NHG_MEMBER
// delete arrives keyed only by ip, matching the original's linear scan
// over m_FgNhgs on member removal (doTaskFgNhg_member, DEL_COMMAND).
func (s *Store) GroupContainingMember(ip string) (*GroupSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groupsByName {
		if _, ok := g.Members[ip]; ok {
			return g, true
		}
	}
	return nil, false
}

// GroupsWithMembersOnLink returns every configured group with at least one
// member pinned to port, used to fan out onLinkOper across every affected
// group (SPEC_FULL.md §4.4).
func (s *Store) GroupsWithMembersOnLink(port string) []*GroupSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*GroupSpec
	for _, g := range s.groupsByName {
		for _, m := range g.Members {
			if m.HasLink && m.Link == port {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// PutInstance inserts or replaces a materialised group instance.
func (s *Store) PutInstance(inst *GroupInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.Key] = inst
}

// Instance looks up a materialised group instance.
func (s *Store) Instance(key VrfPrefix) (*GroupInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[key]
	return inst, ok
}

// DeleteInstance removes a materialised group instance.
func (s *Store) DeleteInstance(key VrfPrefix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, key)
}

// Instances returns a snapshot of every materialised instance, used by the
// read-only status handler and by property tests.
func (s *Store) Instances() []*GroupInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*GroupInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	return out
}

// InstancesForNextHop returns every instance whose declared next-hop key
// includes nh, used to drive onNextHopUp/onNextHopDown fan-out (§4.4).
func (s *Store) InstancesForNextHop(nh nhkey.Key) []*GroupInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*GroupInstance
	for _, inst := range s.instances {
		for _, declared := range inst.NhgKey {
			if declared == nh {
				out = append(out, inst)
				break
			}
		}
	}
	return out
}

// CheckInvariants validates I1 through I5 for inst, returning a descriptive
// error on the first violation found. It is used by the property tests in
// internal/controller and is otherwise dead code in production — cheap
// enough to also run from a debug endpoint if ever wired there.
func (inst *GroupInstance) CheckInvariants() error {
	if inst.PointsToInterface {
		return nil
	}

	// I1: partition.
	total := 0
	prevEnd := -1
	for i, r := range inst.BankRanges {
		if r.Start != prevEnd+1 {
			return fmt.Errorf("I1 violated: bank %d starts at %d, expected %d", i, r.Start, prevEnd+1)
		}
		total += r.Size()
		prevEnd = r.End
	}
	if total != inst.RealBucketCount {
		return fmt.Errorf("I1 violated: ranges cover %d buckets, want %d", total, inst.RealBucketCount)
	}

	// I2: bucket coverage.
	seen := make([]bool, inst.RealBucketCount)
	for bankID, m := range inst.BucketMap {
		for nh, buckets := range m {
			for _, idx := range buckets {
				if idx < 0 || idx >= inst.RealBucketCount {
					return fmt.Errorf("I2 violated: bank %d nh %s owns out-of-range bucket %d", bankID, nh, idx)
				}
				if seen[idx] {
					return fmt.Errorf("I2 violated: bucket %d owned twice", idx)
				}
				seen[idx] = true
				if inst.BucketOwner[idx] != nh {
					return fmt.Errorf("I2 violated: bucket %d owner mismatch, map says %s, flat view says %s", idx, nh, inst.BucketOwner[idx])
				}
			}
		}
	}
	for idx, ok := range seen {
		if !ok {
			return fmt.Errorf("I2 violated: bucket %d unassigned", idx)
		}
	}

	// I3: bank balance, only for banks that are active in their own right.
	for bankID, r := range inst.BankRanges {
		if inst.InactiveToActive[bankID] != bankID {
			continue
		}
		counts := map[nhkey.Key]int{}
		for nh, buckets := range inst.BucketMap[bankID] {
			counts[nh] = len(buckets)
		}
		if len(counts) == 0 {
			continue
		}
		min, max := -1, -1
		for _, c := range counts {
			if min == -1 || c < min {
				min = c
			}
			if c > max {
				max = c
			}
		}
		if max-min > 1 {
			return fmt.Errorf("I3 violated: bank %d bucket counts range from %d to %d over %d buckets", bankID, min, max, r.Size())
		}
	}

	// I4: delegation fidelity. Every delegate a bank points at must
	// itself be self-delegated (active in its own right).
	for bankID, delegate := range inst.InactiveToActive {
		if inst.InactiveToActive[delegate] != delegate {
			return fmt.Errorf("I4 violated: bank %d delegates to bank %d, which is not itself self-delegated", bankID, delegate)
		}
	}

	// I5: active-set fidelity. ActiveNextHops must exactly equal the set
	// of next-hops owning at least one bucket.
	fromBuckets := make(map[nhkey.Key]struct{})
	for _, m := range inst.BucketMap {
		for nh, buckets := range m {
			if len(buckets) > 0 {
				fromBuckets[nh] = struct{}{}
			}
		}
	}
	for nh := range fromBuckets {
		if _, ok := inst.ActiveNextHops[nh]; !ok {
			return fmt.Errorf("I5 violated: %s owns buckets but is not in ActiveNextHops", nh)
		}
	}
	for nh := range inst.ActiveNextHops {
		if _, ok := fromBuckets[nh]; !ok {
			return fmt.Errorf("I5 violated: %s is in ActiveNextHops but owns no buckets", nh)
		}
	}

	return nil
}
