package controller

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jedib0t/go-pretty/v6/table"
)

// RegisterRoutes wires the controller's read-only status/debug handler onto
// r, grounded on cmd/tempo/app/http.go's pattern of registering module
// status handlers on a shared gorilla/mux router.
func (c *Controller) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/status/fgnhgctl", c.StatusHandler).Methods(http.MethodGet)
}

// StatusHandler renders every materialised group instance as a pair of
// plain-text tables, grounded on BackendScheduler.StatusHandler's
// go-pretty/table rendering of its in-memory work queue.
func (c *Controller) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	instances := c.store.Instances()

	x := table.NewWriter()
	x.AppendHeader(table.Row{"vrf", "prefix", "state", "real_buckets", "banks", "active_nexthops", "asic_handle"})
	for _, inst := range instances {
		state := "active"
		if inst.PointsToInterface {
			state = "degraded"
		}
		x.AppendRow(table.Row{
			inst.Key.VRF, inst.Key.Prefix, state, inst.RealBucketCount,
			len(inst.BankRanges), len(inst.ActiveNextHops), inst.AsicGroupHandle,
		})
	}
	x.AppendSeparator()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, x.Render())
	_, _ = io.WriteString(w, "\n\n")

	for _, inst := range instances {
		y := table.NewWriter()
		y.AppendHeader(table.Row{"bank", "active", "delegate", "nexthop", "buckets"})
		for bankID, m := range inst.BucketMap {
			delegate := inst.InactiveToActive[bankID]
			for nh, buckets := range m {
				y.AppendRow(table.Row{bankID, delegate == bankID, delegate, nh.String(), len(buckets)})
			}
		}
		_, _ = io.WriteString(w, fmt.Sprintf("%s:%s\n", inst.Key.VRF, inst.Key.Prefix))
		_, _ = io.WriteString(w, y.Render())
		_, _ = io.WriteString(w, "\n\n")
	}
}
