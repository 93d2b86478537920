// Package southbound declares the external collaborators the FG-ECMP core
// treats as out of scope (SPEC_FULL.md §1, §6): the ASIC programmable-group
// binding, the neighbour/ARP resolver, the router-interface lookup, the
// resource-usage counters and the port-operational-state stream. The core
// depends only on these interfaces, never on a concrete SAI/vendor SDK.
package southbound

import "context"

// AsicGroup is the generic "programmable group" southbound binding for a
// fine-grained ECMP group.
type AsicGroup interface {
	// GroupCreate creates a fine-grained group sized to configuredSize and
	// returns its handle. The ASIC may round the real size up; callers
	// must follow with GroupGetRealSize.
	GroupCreate(ctx context.Context, configuredSize int) (handle string, err error)
	// GroupGetRealSize returns the bucket count the ASIC actually
	// provisioned for handle.
	GroupGetRealSize(ctx context.Context, handle string) (int, error)
	// GroupDestroy tears down a group and every member still attached to it.
	GroupDestroy(ctx context.Context, handle string) error
	// MemberCreate creates one group-member bound to bucket index,
	// pointing at the next-hop identified by nhHandle.
	MemberCreate(ctx context.Context, groupHandle, nhHandle string, bucketIndex int) (memberHandle string, err error)
	// MemberSetNextHop repoints an existing member at a different
	// next-hop, without changing its bucket index.
	MemberSetNextHop(ctx context.Context, memberHandle, nhHandle string) error
	// MemberDestroy removes a single group-member.
	MemberDestroy(ctx context.Context, memberHandle string) error
	// RouteSetNextHop points vrf:prefix at handle, which may be either a
	// fine-grained group handle or a plain router-interface handle.
	RouteSetNextHop(ctx context.Context, vrf, prefix, handle string) error
}

// ResourceKind names one of the well-known resource-tracking counters.
type ResourceKind int

const (
	ResourceGroup ResourceKind = iota
	ResourceGroupMember
	ResourceIPv4NextHop
	ResourceIPv6NextHop
	ResourceIPv4Neighbor
	ResourceIPv6Neighbor
)

// ResourceCounters tracks ASIC resource usage against the platform's
// advertised ceilings.
type ResourceCounters interface {
	Inc(kind ResourceKind)
	Dec(kind ResourceKind)
	// Used and Ceiling report current usage and the configured maximum for
	// kind; Ceiling <= 0 means unbounded.
	Used(kind ResourceKind) int
	Ceiling(kind ResourceKind) int
}

// NeighborResolver is the neighbour/ARP resolution layer: it reports
// (ip, interface) -> mac resolution and maintains next-hop reference
// counts (I7).
type NeighborResolver interface {
	// Resolve reports whether ip on iface currently has a resolved MAC,
	// i.e. whether it is usable as an ASIC next-hop.
	Resolve(ip, iface string) (mac string, ok bool)
	// HasNextHop reports whether the neighbour layer has a next-hop
	// object for nh at all (resolved or not).
	HasNextHop(ip, iface string) bool
	// NextHopHandle returns the ASIC next-hop object handle for a
	// resolved next-hop.
	NextHopHandle(ip, iface string) (handle string, ok bool)
	// IsInterfaceDown reports the "interface-down" flag the input
	// filter consults (SPEC_FULL.md / spec.md §4.4).
	IsInterfaceDown(ip, iface string) bool
	IncRefCount(ip, iface string)
	DecRefCount(ip, iface string)
	// RefCount reports the current reference count, used by I7 property
	// tests.
	RefCount(ip, iface string) int
}

// InterfaceResolver looks up the router-interface object a degraded group
// repoints its route at (SPEC_FULL.md §6, §4.2.3).
type InterfaceResolver interface {
	RouterInterfaceHandle(alias string) (handle string, ok bool)
}

// PortOperPublisher is the port-operational-state stream; the controller
// subscribes to it via Controller.OnLinkOper rather than polling it.
type PortOperPublisher interface {
	Subscribe(fn func(port string, up bool))
}
