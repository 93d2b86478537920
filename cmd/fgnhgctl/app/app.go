// Package app wires fgnhgctl's modules together: the config-delta-driven
// FG controller, its warm-restart state-DB, and a status/metrics HTTP
// server, grounded on cmd/tempo/app.App's role as the top-level wiring
// point — trimmed to this subsystem's much smaller module set (no ring,
// no gRPC server, a single services.Service instead of a modules.Manager).
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonic-net/fgnhgctl/internal/config"
	"github.com/sonic-net/fgnhgctl/internal/controller"
	"github.com/sonic-net/fgnhgctl/internal/fglog"
	"github.com/sonic-net/fgnhgctl/internal/metrics"
	"github.com/sonic-net/fgnhgctl/internal/recovery"
	"github.com/sonic-net/fgnhgctl/internal/southbound/fake"
	"github.com/sonic-net/fgnhgctl/internal/statedb/filedb"
	"github.com/sonic-net/fgnhgctl/internal/statedb/memdb"
	"github.com/sonic-net/fgnhgctl/internal/store"
)

// App is the root datastructure: the FG controller plus the HTTP server
// that exposes its status and Prometheus handlers.
type App struct {
	cfg config.Config

	store      *store.Store
	controller *controller.Controller
	httpServer *http.Server
}

// New builds an App from cfg. There is no real southbound ASIC binding in
// this repo (that lives in the switch platform's syncd process, out of
// scope per spec.md §1); New always wires internal/southbound/fake for
// the ASIC, neighbour and interface bindings (resource counters come from
// internal/metrics), honouring cfg.Simulated for GroupGetRealSize's rounding behaviour so an
// operator can still exercise the controller end-to-end against the
// in-memory ASIC.
func New(cfg config.Config) (*App, error) {
	st := store.New()

	var stateDB store.StateDB
	if cfg.StateDBPath != "" {
		db, err := filedb.Open(cfg.StateDBPath)
		if err != nil {
			return nil, fmt.Errorf("app: opening state-db %s: %w", cfg.StateDBPath, err)
		}
		stateDB = db
	} else {
		stateDB = memdb.New()
	}

	recovered, err := recovery.NewLoader(stateDB).Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("app: loading warm-restart checkpoint: %w", err)
	}

	asic := fake.NewAsic(cfg.Simulated)
	counters := metrics.NewCounters()
	neighbors := fake.NewNeighbors()
	interfaces := fake.NewInterfaces()

	ctrl := controller.New(cfg, st, asic, counters, neighbors, interfaces, stateDB, recovered)

	router := mux.NewRouter()
	ctrl.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	return &App{
		cfg:        cfg,
		store:      st,
		controller: ctrl,
		httpServer: &http.Server{Addr: cfg.HTTPListenAddress, Handler: router},
	}, nil
}

// Controller returns the wired FG controller, the surface config ingest
// pumps and northbound RPC handlers drive.
func (a *App) Controller() *controller.Controller {
	return a.controller
}

// Run starts the controller and the status/metrics HTTP server, blocking
// until ctx is cancelled or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	if err := services.StartAndAwaitRunning(ctx, a.controller); err != nil {
		return fmt.Errorf("app: starting controller: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := services.StopAndAwaitTerminated(stopCtx, a.controller); err != nil {
			level.Warn(fglog.Logger).Log("msg", "controller did not stop cleanly", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		level.Info(fglog.Logger).Log("msg", "fgnhgctl http server listening", "addr", a.cfg.HTTPListenAddress)
		errCh <- a.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
