// Package fake provides in-memory implementations of the southbound
// interfaces for tests and for the simulator ("platform") mode described in
// SPEC_FULL.md §9 / §6, grounded on the integration-test fakes in
// modules/backendscheduler/backendscheduler_test.go's newStore helper.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/sonic-net/fgnhgctl/internal/southbound"
)

// Asic is an in-memory AsicGroup. When Simulated is true, GroupGetRealSize
// returns the configured size verbatim rather than "rounding up" — the
// simulator-platform behaviour spec.md §4.4 step 3 calls out.
type Asic struct {
	mu sync.Mutex

	Simulated bool
	// RealSizeOverride, if non-zero, is returned by GroupGetRealSize
	// instead of the configured size, to exercise ASIC rounding in tests.
	RealSizeOverride int

	nextHandle int
	groups     map[string]int // handle -> configured size
	members    map[string]memberState
}

type memberState struct {
	groupHandle string
	nhHandle    string
	bucketIndex int
}

// NewAsic builds an empty simulated ASIC.
func NewAsic(simulated bool) *Asic {
	return &Asic{
		Simulated: simulated,
		groups:    make(map[string]int),
		members:   make(map[string]memberState),
	}
}

func (a *Asic) handle(prefix string) string {
	a.nextHandle++
	return fmt.Sprintf("%s-%d", prefix, a.nextHandle)
}

func (a *Asic) GroupCreate(_ context.Context, configuredSize int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.handle("grp")
	a.groups[h] = configuredSize
	return h, nil
}

func (a *Asic) GroupGetRealSize(_ context.Context, handle string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	configured, ok := a.groups[handle]
	if !ok {
		return 0, fmt.Errorf("fake asic: unknown group %s", handle)
	}
	if a.Simulated {
		return configured, nil
	}
	if a.RealSizeOverride > 0 {
		return a.RealSizeOverride, nil
	}
	return configured, nil
}

func (a *Asic) GroupDestroy(_ context.Context, handle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.groups[handle]; !ok {
		return fmt.Errorf("fake asic: unknown group %s", handle)
	}
	delete(a.groups, handle)
	for mh, st := range a.members {
		if st.groupHandle == handle {
			delete(a.members, mh)
		}
	}
	return nil
}

func (a *Asic) MemberCreate(_ context.Context, groupHandle, nhHandle string, bucketIndex int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.groups[groupHandle]; !ok {
		return "", fmt.Errorf("fake asic: unknown group %s", groupHandle)
	}
	h := a.handle("mbr")
	a.members[h] = memberState{groupHandle: groupHandle, nhHandle: nhHandle, bucketIndex: bucketIndex}
	return h, nil
}

func (a *Asic) MemberSetNextHop(_ context.Context, memberHandle, nhHandle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.members[memberHandle]
	if !ok {
		return fmt.Errorf("fake asic: unknown member %s", memberHandle)
	}
	st.nhHandle = nhHandle
	a.members[memberHandle] = st
	return nil
}

func (a *Asic) MemberDestroy(_ context.Context, memberHandle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.members, memberHandle)
	return nil
}

func (a *Asic) RouteSetNextHop(_ context.Context, _, _, _ string) error {
	return nil
}

// MemberNextHop exposes the current next-hop bound to a member, for
// assertions in tests.
func (a *Asic) MemberNextHop(memberHandle string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.members[memberHandle]
	return st.nhHandle, ok
}

// Counters is an in-memory ResourceCounters.
type Counters struct {
	mu       sync.Mutex
	used     map[southbound.ResourceKind]int
	ceilings map[southbound.ResourceKind]int
}

func NewCounters() *Counters {
	return &Counters{
		used:     make(map[southbound.ResourceKind]int),
		ceilings: make(map[southbound.ResourceKind]int),
	}
}

func (c *Counters) SetCeiling(kind southbound.ResourceKind, ceiling int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ceilings[kind] = ceiling
}

func (c *Counters) Inc(kind southbound.ResourceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[kind]++
}

func (c *Counters) Dec(kind southbound.ResourceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[kind]--
}

func (c *Counters) Used(kind southbound.ResourceKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used[kind]
}

func (c *Counters) Ceiling(kind southbound.ResourceKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ceilings[kind]
}

type neighState struct {
	handle       string
	resolved     bool
	interfaceDown bool
	refCount     int
}

// Neighbors is an in-memory NeighborResolver.
type Neighbors struct {
	mu    sync.Mutex
	state map[string]*neighState // key: ip@iface
}

func NewNeighbors() *Neighbors {
	return &Neighbors{state: make(map[string]*neighState)}
}

func key(ip, iface string) string { return ip + "@" + iface }

// Add registers a next-hop with the resolver, resolved by default.
func (n *Neighbors) Add(ip, iface, handle string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state[key(ip, iface)] = &neighState{handle: handle, resolved: true}
}

// SetResolved flips a next-hop's resolution state.
func (n *Neighbors) SetResolved(ip, iface string, resolved bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.state[key(ip, iface)]; ok {
		st.resolved = resolved
	}
}

// SetInterfaceDown flips the "interface-down" flag consulted by setRoute's
// input filter.
func (n *Neighbors) SetInterfaceDown(ip, iface string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.state[key(ip, iface)]; ok {
		st.interfaceDown = down
	}
}

func (n *Neighbors) Resolve(ip, iface string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.state[key(ip, iface)]
	if !ok || !st.resolved {
		return "", false
	}
	return st.handle, true
}

func (n *Neighbors) HasNextHop(ip, iface string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.state[key(ip, iface)]
	return ok
}

func (n *Neighbors) NextHopHandle(ip, iface string) (string, bool) {
	return n.Resolve(ip, iface)
}

func (n *Neighbors) IsInterfaceDown(ip, iface string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.state[key(ip, iface)]
	return ok && st.interfaceDown
}

func (n *Neighbors) IncRefCount(ip, iface string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.state[key(ip, iface)]; ok {
		st.refCount++
	}
}

func (n *Neighbors) DecRefCount(ip, iface string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.state[key(ip, iface)]; ok && st.refCount > 0 {
		st.refCount--
	}
}

func (n *Neighbors) RefCount(ip, iface string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.state[key(ip, iface)]
	if !ok {
		return 0
	}
	return st.refCount
}

// Interfaces is an in-memory InterfaceResolver.
type Interfaces struct {
	mu      sync.Mutex
	handles map[string]string
}

func NewInterfaces() *Interfaces {
	return &Interfaces{handles: make(map[string]string)}
}

func (i *Interfaces) Add(alias, handle string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handles[alias] = handle
}

func (i *Interfaces) RouterInterfaceHandle(alias string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	h, ok := i.handles[alias]
	return h, ok
}
