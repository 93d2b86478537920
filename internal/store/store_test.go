package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/planner"
)

func TestCheckInvariantsCatchesBucketOwnerMismatch(t *testing.T) {
	inst := NewGroupInstance(VrfPrefix{Prefix: "10.0.0.0/24"}, []planner.BankRange{{Start: 0, End: 3}}, 4)
	a := nhkey.New("A", "")
	b := nhkey.New("B", "")

	inst.AssignBucket(0, 0, a)
	inst.AssignBucket(0, 1, a)
	inst.AssignBucket(0, 2, b)
	inst.AssignBucket(0, 3, b)
	inst.InactiveToActive[0] = 0
	require.NoError(t, inst.CheckInvariants())

	inst.BucketOwner[3] = a
	require.ErrorContains(t, inst.CheckInvariants(), "I2 violated")
}

func TestCheckInvariantsCatchesBankImbalance(t *testing.T) {
	inst := NewGroupInstance(VrfPrefix{Prefix: "10.0.0.0/24"}, []planner.BankRange{{Start: 0, End: 3}}, 4)
	a := nhkey.New("A", "")
	b := nhkey.New("B", "")

	inst.AssignBucket(0, 0, a)
	inst.AssignBucket(0, 1, a)
	inst.AssignBucket(0, 2, a)
	inst.AssignBucket(0, 3, b)
	inst.InactiveToActive[0] = 0

	require.ErrorContains(t, inst.CheckInvariants(), "I3 violated")
}

func TestGroupsWithMembersOnLink(t *testing.T) {
	s := New()
	s.UpsertGroup(&GroupSpec{
		Name: "grp1",
		Members: map[string]MemberInfo{
			"A": {Bank: 0, Link: "Ethernet0", HasLink: true},
			"B": {Bank: 0},
		},
		Prefixes: map[string]struct{}{},
	})
	s.UpsertGroup(&GroupSpec{
		Name:     "grp2",
		Members:  map[string]MemberInfo{"C": {Bank: 0, Link: "Ethernet4", HasLink: true}},
		Prefixes: map[string]struct{}{},
	})

	got := s.GroupsWithMembersOnLink("Ethernet0")
	require.Len(t, got, 1)
	require.Equal(t, "grp1", got[0].Name)

	require.Empty(t, s.GroupsWithMembersOnLink("Ethernet99"))
}

func TestInstancesForNextHop(t *testing.T) {
	s := New()
	key := VrfPrefix{Prefix: "10.0.0.0/24"}
	inst := NewGroupInstance(key, []planner.BankRange{{Start: 0, End: 1}}, 2)
	inst.NhgKey = []nhkey.Key{nhkey.New("A", ""), nhkey.New("B", "")}
	s.PutInstance(inst)

	found := s.InstancesForNextHop(nhkey.New("A", ""))
	require.Len(t, found, 1)
	require.Equal(t, key, found[0].Key)

	require.Empty(t, s.InstancesForNextHop(nhkey.New("Z", "")))
}
