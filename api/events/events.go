package events

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/appkins-org/neutron-metadata/pkg/hostroute"
	"github.com/appkins-org/neutron-metadata/pkg/metanet"
	"github.com/appkins-org/neutron-metadata/pkg/neutron"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Handler exposes the event-ingestion HTTP surface of the service: the
// networking plugin posts router interface and DHCP port events here.
type Handler struct {
	Orchestrator *metanet.Orchestrator
	Routes       *hostroute.Calculator
}

// Router sets up the HTTP routes for the event surface.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/routers/{router_id}/interfaces/{subnet_id}", h.handleInterfaceAdd).Methods("PUT")
	r.HandleFunc("/v1/routers/{router_id}/interfaces/{subnet_id}", h.handleInterfaceRemove).Methods("DELETE")
	r.HandleFunc("/v1/routers/{router_id}", h.handleRouterDeleted).Methods("DELETE")
	r.HandleFunc("/v1/subnets/{subnet_id}/dhcp-port", h.handleDHCPPortCreated).Methods("PUT")
	r.HandleFunc("/v1/subnets/{subnet_id}/dhcp-port", h.handleDHCPPortDeleted).Methods("DELETE")
	r.HandleFunc("/healthz", h.handleHealthz).Methods("GET")

	r.Use(h.loggingMiddleware)

	return r
}

// loggingMiddleware logs incoming requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// handleInterfaceAdd handles PUT /v1/routers/{router_id}/interfaces/{subnet_id}
func (h *Handler) handleInterfaceAdd(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	info, err := h.Orchestrator.AttachSubnet(r.Context(), vars["router_id"], vars["subnet_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, info)
}

// handleInterfaceRemove handles DELETE /v1/routers/{router_id}/interfaces/{subnet_id}
func (h *Handler) handleInterfaceRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Orchestrator.DetachSubnet(r.Context(), vars["router_id"], vars["subnet_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRouterDeleted handles DELETE /v1/routers/{router_id}
func (h *Handler) handleRouterDeleted(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Orchestrator.HandleRouterDeleted(r.Context(), vars["router_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dhcpPortEvent struct {
	IPAddress string `json:"ip_address"`
}

// handleDHCPPortCreated handles PUT /v1/subnets/{subnet_id}/dhcp-port
func (h *Handler) handleDHCPPortCreated(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var ev dhcpPortEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := netip.ParseAddr(ev.IPAddress); err != nil {
		http.Error(w, "invalid ip_address", http.StatusBadRequest)
		return
	}

	if err := h.Routes.DHCPPortCreated(r.Context(), vars["subnet_id"], ev.IPAddress); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDHCPPortDeleted handles DELETE /v1/subnets/{subnet_id}/dhcp-port
func (h *Handler) handleDHCPPortDeleted(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Routes.DHCPPortDeleted(r.Context(), vars["subnet_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz handles GET /healthz
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case neutron.IsNotFound(err):
		status = http.StatusNotFound
	case neutron.IsConflict(err):
		status = http.StatusConflict
	case neutron.IsProvisionError(err):
		status = http.StatusBadGateway
	}
	h.writeJSONResponse(w, status, map[string]string{"error": err.Error()})
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// ListenAndServe is patterned after http.ListenAndServe.
// It listens on the TCP network address addr and then calls ServeHTTP to
// handle requests on incoming connections.
//
// ListenAndServe always returns a non-nil error. After Shutdown or Close,
// the returned error is http.ErrServerClosed.
func ListenAndServe(ctx context.Context, addr netip.AddrPort, h *http.Server) error {
	conn, err := net.Listen("tcp", addr.String())
	if err != nil {
		return err
	}
	return Serve(ctx, conn, h)
}

// Serve is patterned after http.Serve.
// It accepts incoming connections on the Listener conn and serves them
// using the Server h.
//
// Serve always returns a non-nil error and closes conn.
// After Shutdown or Close, the returned error is http.ErrServerClosed.
func Serve(_ context.Context, conn net.Listener, h *http.Server) error {
	return h.Serve(conn)
}
