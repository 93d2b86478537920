package config

import (
	"fmt"
	"strconv"

	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// EventKind names the store-level change an Apply* call produced, handed
// to Controller.ConfigUpdate so it knows whether a materialisation or
// de-materialisation is now due.
type EventKind int

const (
	EventNone EventKind = iota
	EventGroupAdded
	EventGroupDeleted
	EventPrefixBound
	EventPrefixUnbound
	EventMemberAdded
	EventMemberRemoved
)

// Event is the parsed, store-applied result of one KeyOpFields delta.
type Event struct {
	Kind      EventKind
	GroupName string
	Prefix    string
	NextHopIP string
}

// Ingester decodes FG_NHG/FG_NHG_PREFIX/FG_NHG_MEMBER deltas and applies
// them to a store.Store, matching doTaskFgNhg/doTaskFgNhg_prefix/
// doTaskFgNhg_member in the original. Every method returns an error
// wrapping fgerr.ErrConfig (drop, no retry — the original's "return true"
// after logging a warning/error) or fgerr.ErrTransient (requeue — the
// original's "return false" when a dependency hasn't arrived yet).
type Ingester struct {
	Store *store.Store
	// DefaultBucketCount mirrors the config.Config knob of the same name.
	// ApplyFgNhg never reads it: a FG_NHG SET that omits bucket_size is a
	// config error, as in the original.
	DefaultBucketCount int
}

// NewIngester builds an Ingester over s.
func NewIngester(s *store.Store) *Ingester {
	return &Ingester{Store: s}
}

// ApplyFgNhg applies one FG_NHG table delta.
func (ing *Ingester) ApplyFgNhg(kv KeyOpFields) (Event, error) {
	name := kv.Key

	if kv.Op == OpDel {
		group, ok := ing.Store.Group(name)
		if !ok {
			return Event{}, nil
		}
		if len(group.Prefixes) != 0 || len(group.Members) != 0 {
			return Event{}, fmt.Errorf("%w: FG_NHG %s still has prefix or member entries", fgerr.ErrTransient, name)
		}
		ing.Store.DeleteGroup(name)
		return Event{Kind: EventGroupDeleted, GroupName: name}, nil
	}

	if _, ok := ing.Store.Group(name); ok {
		return Event{}, nil
	}

	bucketSize := 0
	if raw, ok := kv.Fields["bucket_size"]; ok {
		n, err := strconv.Atoi(raw)
		if err == nil {
			bucketSize = n
		}
	}
	if bucketSize == 0 {
		return Event{}, fmt.Errorf("%w: FG_NHG %s received bucket_size 0", fgerr.ErrConfig, name)
	}

	matchMode := store.RouteBased
	if raw, ok := kv.Fields["match_mode"]; ok && raw == "nexthop-based" {
		matchMode = store.NexthopBased
	}

	ing.Store.UpsertGroup(&store.GroupSpec{
		Name:                  name,
		ConfiguredBucketCount: bucketSize,
		MatchMode:             matchMode,
		Members:               make(map[string]store.MemberInfo),
		Prefixes:              make(map[string]struct{}),
	})
	return Event{Kind: EventGroupAdded, GroupName: name}, nil
}

// ApplyFgNhgPrefix applies one FG_NHG_PREFIX table delta.
func (ing *Ingester) ApplyFgNhgPrefix(kv KeyOpFields) (Event, error) {
	prefix := kv.Key

	if kv.Op == OpDel {
		group, ok := ing.Store.GroupForPrefix(prefix)
		if !ok {
			return Event{}, nil
		}
		delete(group.Prefixes, prefix)
		ing.Store.UnbindPrefix(prefix)
		return Event{Kind: EventPrefixUnbound, GroupName: group.Name, Prefix: prefix}, nil
	}

	if _, ok := ing.Store.GroupForPrefix(prefix); ok {
		return Event{}, nil
	}

	name, ok := kv.Fields["FG_NHG"]
	if !ok || name == "" {
		return Event{}, fmt.Errorf("%w: FG_NHG_PREFIX %s received an empty FG_NHG name", fgerr.ErrConfig, prefix)
	}

	group, ok := ing.Store.Group(name)
	if !ok {
		return Event{}, fmt.Errorf("%w: FG_NHG %s referenced by prefix %s not configured yet", fgerr.ErrTransient, name, prefix)
	}

	if group.MatchMode == store.NexthopBased {
		return Event{}, nil
	}

	group.Prefixes[prefix] = struct{}{}
	ing.Store.BindPrefix(prefix, name)
	return Event{Kind: EventPrefixBound, GroupName: name, Prefix: prefix}, nil
}

// ApplyFgNhgMember applies one FG_NHG_MEMBER table delta.
func (ing *Ingester) ApplyFgNhgMember(kv KeyOpFields) (Event, error) {
	ip := kv.Key

	if kv.Op == OpDel {
		group, ok := ing.Store.GroupContainingMember(ip)
		if !ok {
			return Event{}, nil
		}
		delete(group.Members, ip)
		ing.Store.UnbindNextHop(ip)
		return Event{Kind: EventMemberRemoved, GroupName: group.Name, NextHopIP: ip}, nil
	}

	name, ok := kv.Fields["FG_NHG"]
	if !ok || name == "" {
		return Event{}, fmt.Errorf("%w: FG_NHG_MEMBER %s received an empty FG_NHG name", fgerr.ErrConfig, ip)
	}

	group, ok := ing.Store.Group(name)
	if !ok {
		return Event{}, fmt.Errorf("%w: FG_NHG %s referenced by member %s not configured yet", fgerr.ErrTransient, name, ip)
	}

	if _, exists := group.Members[ip]; exists {
		return Event{}, nil
	}

	bank := 0
	if raw, ok := kv.Fields["bank"]; ok {
		n, err := strconv.Atoi(raw)
		if err == nil {
			bank = n
		}
	}
	link := kv.Fields["link"]

	group.Members[ip] = store.MemberInfo{
		Bank:    bank,
		Link:    link,
		HasLink: link != "",
	}

	if group.MatchMode == store.NexthopBased {
		ing.Store.BindNextHop(ip, name)
	}

	return Event{Kind: EventMemberAdded, GroupName: name, NextHopIP: ip}, nil
}
