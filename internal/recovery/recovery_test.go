package recovery

import (
	"context"
	"testing"

	"github.com/sonic-net/fgnhgctl/internal/statedb/memdb"
	"github.com/stretchr/testify/require"
)

func TestLoadRecoversAndClearsRows(t *testing.T) {
	db := memdb.New()
	require.NoError(t, db.SetField(RouteTable, "10.0.0.0/24", "0", "1.1.1.1"))
	require.NoError(t, db.SetField(RouteTable, "10.0.0.0/24", "1", "2.2.2.2"))
	require.NoError(t, db.SetField(RouteTable, "10.0.1.0/24", "0", "3.3.3.3"))

	m, err := NewLoader(db).Load(context.Background())
	require.NoError(t, err)

	byIndex, ok := m.Take("10.0.0.0/24")
	require.True(t, ok)
	require.Equal(t, "1.1.1.1", byIndex[0])
	require.Equal(t, "2.2.2.2", byIndex[1])

	// A prefix is consumed at most once.
	_, ok = m.Take("10.0.0.0/24")
	require.False(t, ok)

	// Rows are cleared from the backing state-DB as they're loaded.
	keys, err := db.Keys(RouteTable)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestLoadEmptyTable(t *testing.T) {
	db := memdb.New()
	m, err := NewLoader(db).Load(context.Background())
	require.NoError(t, err)

	_, ok := m.Take("10.0.0.0/24")
	require.False(t, ok)
}

func TestTakeOnNilMap(t *testing.T) {
	var m *Map
	_, ok := m.Take("10.0.0.0/24")
	require.False(t, ok)
}
