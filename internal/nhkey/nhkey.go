// Package nhkey defines the next-hop identity shared across the planner,
// rebalancer, store and controller packages.
package nhkey

import (
	"fmt"
	"strings"
)

// Key identifies a single resolved next-hop: an IP address paired with the
// router interface (alias) it egresses on. It is the Go analogue of the
// source's NextHopKey (ip+interface).
type Key struct {
	IP        string
	Interface string
}

// New builds a Key from its parts.
func New(ip, iface string) Key {
	return Key{IP: ip, Interface: iface}
}

// String renders the key in "ip@interface" form, used both as a map key's
// display form and as the wire format persisted into the state-DB route
// table (I6).
func (k Key) String() string {
	if k.Interface == "" {
		return k.IP
	}
	return k.IP + "@" + k.Interface
}

// Parse is the inverse of String, used when replaying a checkpointed
// bucket->nh mapping during warm-restart recovery.
func Parse(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("nhkey: empty key")
	}
	ip, iface, found := strings.Cut(s, "@")
	if !found {
		return Key{IP: ip}, nil
	}
	return Key{IP: ip, Interface: iface}, nil
}
