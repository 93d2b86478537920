package controller

import (
	"context"
	"flag"
	"testing"

	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/require"

	"github.com/sonic-net/fgnhgctl/internal/config"
	"github.com/sonic-net/fgnhgctl/internal/nhkey"
	"github.com/sonic-net/fgnhgctl/internal/recovery"
	"github.com/sonic-net/fgnhgctl/internal/southbound"
	"github.com/sonic-net/fgnhgctl/internal/southbound/fake"
	"github.com/sonic-net/fgnhgctl/internal/statedb/memdb"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

type testRig struct {
	ctrl       *Controller
	st         *store.Store
	asic       *fake.Asic
	neighbors  *fake.Neighbors
	interfaces *fake.Interfaces
	counters   *fake.Counters
	db         *memdb.DB
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	st := store.New()
	asic := fake.NewAsic(true)
	neighbors := fake.NewNeighbors()
	interfaces := fake.NewInterfaces()
	counters := fake.NewCounters()
	db := memdb.New()
	interfaces.Add("", "rif-default")

	recovered, err := recovery.NewLoader(db).Load(context.Background())
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	ctrl := New(cfg, st, asic, counters, neighbors, interfaces, db, recovered)
	require.NoError(t, services.StartAndAwaitRunning(context.Background(), ctrl))
	t.Cleanup(func() {
		require.NoError(t, services.StopAndAwaitTerminated(context.Background(), ctrl))
	})

	return &testRig{ctrl: ctrl, st: st, asic: asic, neighbors: neighbors, interfaces: interfaces, counters: counters, db: db}
}

// configureScenario1Group builds spec.md §8 scenario 1's group (bank 0 =
// A..F, bank 1 = G,H,I, bucket_size 30) and binds it to prefix, driving
// every step through Controller.ConfigUpdate the way a config-DB ingest
// pump would.
func (rig *testRig) configureScenario1Group(t *testing.T, ctx context.Context, name, prefix string) {
	t.Helper()

	require.NoError(t, rig.ctrl.ConfigUpdate(ctx, config.TableFgNhg, config.KeyOpFields{
		Key: name, Op: config.OpSet, Fields: map[string]string{"bucket_size": "30"},
	}))

	bankOf := map[string]string{"A": "0", "B": "0", "C": "0", "D": "0", "E": "0", "F": "0", "G": "1", "H": "1", "I": "1"}
	for ip, bank := range bankOf {
		rig.neighbors.Add(ip, "", "nh-"+ip)
		require.NoError(t, rig.ctrl.ConfigUpdate(ctx, config.TableFgNhgMember, config.KeyOpFields{
			Key: ip, Op: config.OpSet, Fields: map[string]string{"FG_NHG": name, "bank": bank},
		}))
	}

	require.NoError(t, rig.ctrl.ConfigUpdate(ctx, config.TableFgNhgPrefix, config.KeyOpFields{
		Key: prefix, Op: config.OpSet, Fields: map[string]string{"FG_NHG": name},
	}))
}

func TestConfigDrivenMaterialisation(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.configureScenario1Group(t, ctx, "grp1", "10.0.0.0/24")

	inst, ok := rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.True(t, ok)
	require.NoError(t, inst.CheckInvariants())
	require.Len(t, inst.ActiveNextHops, 9)
	require.Equal(t, 1, rig.counters.Used(southbound.ResourceGroup))
}

func TestNextHopDownThenUpRestoresActiveSet(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.configureScenario1Group(t, ctx, "grp1", "10.0.0.0/24")

	require.NoError(t, rig.ctrl.NextHopDown(ctx, nhkey.New("A", "")))

	inst, ok := rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.True(t, ok)
	require.NoError(t, inst.CheckInvariants())
	_, stillActive := inst.ActiveNextHops[nhkey.New("A", "")]
	require.False(t, stillActive)

	require.NoError(t, rig.ctrl.NextHopUp(ctx, nhkey.New("A", "")))
	inst, ok = rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.True(t, ok)
	require.NoError(t, inst.CheckInvariants())
	_, active := inst.ActiveNextHops[nhkey.New("A", "")]
	require.True(t, active)
}

func TestAllMembersDownDegradesThenPromotes(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.configureScenario1Group(t, ctx, "grp1", "10.0.0.0/24")

	for _, ip := range []string{"A", "B", "C", "D", "E", "F"} {
		require.NoError(t, rig.ctrl.NextHopDown(ctx, nhkey.New(ip, "")))
	}
	for _, ip := range []string{"G", "H", "I"} {
		require.NoError(t, rig.ctrl.NextHopDown(ctx, nhkey.New(ip, "")))
	}

	inst, ok := rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.True(t, ok)
	require.True(t, inst.PointsToInterface)
	require.Equal(t, 0, rig.counters.Used(southbound.ResourceGroup))

	require.NoError(t, rig.ctrl.NextHopUp(ctx, nhkey.New("A", "")))
	inst, ok = rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.True(t, ok)
	require.False(t, inst.PointsToInterface)
	require.Equal(t, 1, rig.counters.Used(southbound.ResourceGroup))
}

func TestRemoveRouteTearsDownInstance(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	rig.configureScenario1Group(t, ctx, "grp1", "10.0.0.0/24")

	require.NoError(t, rig.ctrl.RemoveRoute(ctx, "", "10.0.0.0/24"))
	_, ok := rig.st.Instance(store.VrfPrefix{VRF: "", Prefix: "10.0.0.0/24"})
	require.False(t, ok)
	require.Equal(t, 0, rig.counters.Used(southbound.ResourceGroup))

	_, ok, err := rig.db.Row(store.RouteTable, "10.0.0.0/24")
	require.NoError(t, err)
	require.False(t, ok)
}
