package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// StatusProvider supplies a per-component status snapshot for the
// /status/{componentId} endpoint. federation.Process implements it from
// each hosted engine.Loop's Manager() accessor and its queue.
type StatusProvider interface {
	ComponentStatus(id model.ComponentId) (ComponentStatus, bool)
}

// ComponentStatus is the JSON body served by /status/{componentId}.
type ComponentStatus struct {
	ComponentId     model.ComponentId `json:"component_id"`
	LVT             model.Timestamp   `json:"lvt"`
	QueueDepth      int               `json:"queue_depth"`
	CheckpointCount int               `json:"checkpoint_count"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AdminServer exposes health, Prometheus metrics, per-component status, and
// a live event-feed websocket endpoint. Route layout follows the teacher's
// chi/gorilla-mux admin routing convention (path-prefixed, one handler per
// concern) from its cmd/server HTTP wiring.
type AdminServer struct {
	addr     string
	bus      *EventBus
	statuses StatusProvider
	logger   *slog.Logger
	server   *http.Server
}

// NewAdminServer builds an AdminServer bound to addr.
func NewAdminServer(addr string, bus *EventBus, statuses StatusProvider, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AdminServer{
		addr:     addr,
		bus:      bus,
		statuses: statuses,
		logger:   logger.With("subsystem", "admin"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status/{componentId}", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.handleWebsocket).Methods(http.MethodGet)

	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var rawID uint32
	if _, err := fmt.Sscanf(vars["componentId"], "%d", &rawID); err != nil {
		http.Error(w, "invalid component id", http.StatusBadRequest)
		return
	}

	status, ok := a.statuses.ComponentStatus(model.ComponentId(rawID))
	if !ok {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (a *AdminServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sub := NewWebsocketSubscriber(conn)
	a.bus.Subscribe(sub)
}

// ListenAndServe blocks until ctx is cancelled, then attempts a graceful
// shutdown.
func (a *AdminServer) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
