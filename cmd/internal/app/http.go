package app

import (
	"context"
	"net/http"
	"time"
)

// registerHTTP mounts every route the server exposes.
func registerHTTP(mux *http.ServeMux, a *App) {
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.Handle("/metrics", a.metrics.Handler())

	a.auth.Register(mux)
	mux.HandleFunc("/ws", a.ws.HandleWS)
}

// handleHealthz reports process liveness only.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports whether the server can take traffic. When
// BEACON_READINESS_REQUIRE_STORE is set, the session backend must answer a
// ping before the endpoint returns 200.
func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.cfg.ReadinessRequireStore {
		if err := a.pingStore(r.Context()); err != nil {
			a.log.Warn("readyz.store.fail", "store", a.storeKind, "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) pingStore(ctx context.Context) error {
	const timeout = 2 * time.Second

	switch a.storeKind {
	case StorePostgres:
		return PingDB(ctx, a.dbPool, timeout)
	case StoreRedis:
		return PingRedis(ctx, a.rdb, timeout)
	default:
		return nil
	}
}
