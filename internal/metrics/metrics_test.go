package metrics

import (
	"testing"

	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/stretchr/testify/require"
)

func TestCountersTracksUsageAndCeiling(t *testing.T) {
	c := NewCounters()

	c.SetCeiling(southbound.ResourceGroup, 128)
	require.Equal(t, 128, c.Ceiling(southbound.ResourceGroup))
	require.Equal(t, 0, c.Used(southbound.ResourceGroup))

	c.Inc(southbound.ResourceGroup)
	c.Inc(southbound.ResourceGroup)
	c.Dec(southbound.ResourceGroup)
	require.Equal(t, 1, c.Used(southbound.ResourceGroup))
}

func TestCountersKindsAreIndependent(t *testing.T) {
	c := NewCounters()

	c.Inc(southbound.ResourceIPv4NextHop)
	c.Inc(southbound.ResourceIPv6NextHop)
	c.Inc(southbound.ResourceIPv6NextHop)

	require.Equal(t, 1, c.Used(southbound.ResourceIPv4NextHop))
	require.Equal(t, 2, c.Used(southbound.ResourceIPv6NextHop))
	require.Equal(t, 0, c.Ceiling(southbound.ResourceIPv4Neighbor))
}
