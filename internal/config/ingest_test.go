package config

import (
	"testing"

	"github.com/sonic-net/fgnhgctl/internal/fgerr"
	"github.com/sonic-net/fgnhgctl/internal/store"
	"github.com/stretchr/testify/require"
)

func TestApplyFgNhgSetRejectsZeroBucketSize(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{}})
	require.ErrorIs(t, err, fgerr.ErrConfig)
}

func TestApplyFgNhgSetThenDuplicateIsNoop(t *testing.T) {
	ing := NewIngester(store.New())
	ev, err := ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{"bucket_size": "30"}})
	require.NoError(t, err)
	require.Equal(t, EventGroupAdded, ev.Kind)

	ev, err = ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{"bucket_size": "60"}})
	require.NoError(t, err)
	require.Equal(t, EventNone, ev.Kind)

	g, ok := ing.Store.Group("grp0")
	require.True(t, ok)
	require.Equal(t, 30, g.ConfiguredBucketCount)
}

func TestApplyFgNhgDeleteWithDependentsRetries(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{"bucket_size": "30"}})
	require.NoError(t, err)
	_, err = ing.ApplyFgNhgPrefix(KeyOpFields{Key: "10.0.0.0/24", Op: OpSet, Fields: map[string]string{"FG_NHG": "grp0"}})
	require.NoError(t, err)

	_, err = ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpDel})
	require.ErrorIs(t, err, fgerr.ErrTransient)
}

func TestApplyFgNhgPrefixBeforeGroupRetries(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhgPrefix(KeyOpFields{Key: "10.0.0.0/24", Op: OpSet, Fields: map[string]string{"FG_NHG": "grp0"}})
	require.ErrorIs(t, err, fgerr.ErrTransient)
}

func TestApplyFgNhgPrefixNexthopBasedIsNoop(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{
		"bucket_size": "30",
		"match_mode":  "nexthop-based",
	}})
	require.NoError(t, err)

	ev, err := ing.ApplyFgNhgPrefix(KeyOpFields{Key: "10.0.0.0/24", Op: OpSet, Fields: map[string]string{"FG_NHG": "grp0"}})
	require.NoError(t, err)
	require.Equal(t, EventNone, ev.Kind)

	_, bound := ing.Store.GroupForPrefix("10.0.0.0/24")
	require.False(t, bound)
}

func TestApplyFgNhgMemberLifecycle(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhg(KeyOpFields{Key: "grp0", Op: OpSet, Fields: map[string]string{"bucket_size": "30"}})
	require.NoError(t, err)

	ev, err := ing.ApplyFgNhgMember(KeyOpFields{Key: "1.1.1.1", Op: OpSet, Fields: map[string]string{
		"FG_NHG": "grp0",
		"bank":   "1",
		"link":   "Ethernet0",
	}})
	require.NoError(t, err)
	require.Equal(t, EventMemberAdded, ev.Kind)

	g, _ := ing.Store.Group("grp0")
	require.Equal(t, 1, g.Members["1.1.1.1"].Bank)
	require.True(t, g.Members["1.1.1.1"].HasLink)

	ev, err = ing.ApplyFgNhgMember(KeyOpFields{Key: "1.1.1.1", Op: OpDel})
	require.NoError(t, err)
	require.Equal(t, EventMemberRemoved, ev.Kind)
	_, exists := g.Members["1.1.1.1"]
	require.False(t, exists)
}

func TestApplyFgNhgMemberBeforeGroupRetries(t *testing.T) {
	ing := NewIngester(store.New())
	_, err := ing.ApplyFgNhgMember(KeyOpFields{Key: "1.1.1.1", Op: OpSet, Fields: map[string]string{"FG_NHG": "grp0"}})
	require.ErrorIs(t, err, fgerr.ErrTransient)
}
