package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus"

	"microgrid_simulator/internal/api"
	"microgrid_simulator/internal/config"
	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/metrics"
	"microgrid_simulator/internal/mqtt"
	"microgrid_simulator/internal/simulator"
	"microgrid_simulator/internal/store"
	"microgrid_simulator/internal/ws"
)

// app wires sessions to their transports and sinks.
type app struct {
	cfg *config.Config
	log logger.Logger

	hub       *ws.Hub
	sessions  *store.Store
	collector *metrics.Collector
	registry  *prometheus.Registry
	publisher *mqtt.Publisher
}

// newApp builds the service. A nil registry means a fresh one when metrics
// are enabled.
func newApp(cfg *config.Config, reg *prometheus.Registry) (*app, error) {
	a := &app{
		cfg: cfg,
		log: logger.New("server"),
		hub: ws.NewHub(logger.New("ws")),
	}

	if cfg.Metrics.Enabled {
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		c, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.collector = c
		a.registry = reg
	}

	if cfg.MQTT.Enabled {
		p, err := mqtt.NewPublisher(cfg.MQTT.Config, logger.New("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		a.publisher = p
	}

	a.sessions = store.New(a.newEngine, cfg.Simulation.MaxSessions)
	if a.collector != nil {
		a.sessions.OnDelete(a.collector.Forget)
	}
	if _, err := a.sessions.Default(); err != nil {
		return nil, fmt.Errorf("create default session: %w", err)
	}
	return a, nil
}

func (a *app) newEngine(id string) *simulator.Engine {
	cbs := []simulator.Callback{ws.NewBridge(a.hub, id)}
	if a.collector != nil {
		cbs = append(cbs, a.collector.ForSession(id))
	}
	if a.publisher != nil {
		cbs = append(cbs, a.publisher.ForSession(id))
	}
	a.log.Infof("session %s ready", id)
	return simulator.New(a.cfg.EngineConfig(logger.New("engine")), simulator.NewMulti(cbs...))
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", ws.NewHandler(a.hub, a.sessions))
	mux.Handle("/api/", gziphandler.GzipHandler(api.NewRouter(a.sessions, logger.New("api"))))

	// Serve frontend static files
	if dir := a.cfg.Server.FrontendDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			a.log.Infof("serving frontend from %s", dir)
			mux.Handle("/", gziphandler.GzipHandler(http.FileServer(http.Dir(dir))))
		}
	}
	return api.WithCORS(mux, a.cfg.Server.CORSOrigins)
}

// Run serves until ctx is canceled.
func (a *app) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.registry != nil {
		go func() {
			a.log.Infof("metrics on %s", a.cfg.Metrics.Addr)
			if err := metrics.StartServer(ctx, a.cfg.Metrics.Addr, a.registry, a.log); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	srv := &http.Server{Addr: a.cfg.Server.Addr, Handler: a.routes()}
	go func() {
		a.log.Infof("starting server on %s", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Infof("server stopped")
	return nil
}

// Close pauses every session and flushes the publisher.
func (a *app) Close() {
	a.sessions.PauseAll()
	if a.publisher != nil {
		a.publisher.Close()
	}
}
