package filedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFiledbRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")

	db, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, db.SetField("FG_ROUTE_TABLE", "10.0.0.0/24", "0", "1.1.1.1@Ethernet0"))
	require.NoError(t, db.SetField("FG_ROUTE_TABLE", "10.0.0.0/24", "1", "2.2.2.2@Ethernet4"))

	reopened, err := Open(path)
	require.NoError(t, err)

	row, ok, err := reopened.Row("FG_ROUTE_TABLE", "10.0.0.0/24")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.1.1.1@Ethernet0", row["0"])
	require.Equal(t, "2.2.2.2@Ethernet4", row["1"])
}

func TestFiledbDelRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	db, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, db.SetField("FG_ROUTE_TABLE", "10.0.0.0/24", "0", "1.1.1.1@Ethernet0"))
	require.NoError(t, db.DelRow("FG_ROUTE_TABLE", "10.0.0.0/24"))

	_, ok, err := db.Row("FG_ROUTE_TABLE", "10.0.0.0/24")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFiledbOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	db, err := Open(path)
	require.NoError(t, err)

	keys, err := db.Keys("FG_ROUTE_TABLE")
	require.NoError(t, err)
	require.Empty(t, keys)
}
