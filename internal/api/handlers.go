package api

import (
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/roomgate/internal/gateway"
)

// rootBanner is the liveness text served at "/".
const rootBanner = "roomgate is running"

// uplinkResponse is the body of a fully forwarded uplink.
type uplinkResponse struct {
	Status  string          `json:"status"`
	Shape   gateway.Shape   `json:"shape"`
	RoomID  string          `json:"room_id,omitempty"`
	Written []gateway.Field `json:"written"`
}

// commandResponse is the body of a forwarded command.
type commandResponse struct {
	Status    string `json:"status"`
	CommandID string `json:"command_id"`
	IssuedAt  string `json:"issued_at"`
}

// handleRoot answers liveness probes with plain text.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	io.WriteString(w, rootBanner)
}

// handleHealth reports process health. The store probe, when configured,
// degrades the status but never fails the request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"available": s.gateway.Available(),
	}
	if s.store != nil {
		if err := s.store.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("store health check failed", "error", err)
			resp["status"] = "degraded"
			resp["store"] = "unreachable"
		} else {
			resp["store"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUplink forwards a device payload.
func (s *Server) handleUplink(w http.ResponseWriter, r *http.Request) {
	body := readBody(r)

	res, err := s.gateway.Uplink(r.Context(), r.Header.Get("Authorization"), body)
	if err != nil {
		s.writeGatewayError(w, err, res.Result)
		return
	}

	writeJSON(w, http.StatusOK, uplinkResponse{
		Status:  "ok",
		Shape:   res.Shape,
		RoomID:  res.RoomID,
		Written: res.Written,
	})
}

// handleDownlink relays the whole tree verbatim.
func (s *Server) handleDownlink(w http.ResponseWriter, r *http.Request) {
	tree, err := s.gateway.Downlink(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.writeGatewayError(w, err, gateway.Result{})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(tree)
}

// handleCommand forwards an operator instruction.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body := readBody(r)

	res, err := s.gateway.Command(r.Context(), r.Header.Get("Authorization"), body)
	if err != nil {
		s.writeGatewayError(w, err, res.Result)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Status:    "ok",
		CommandID: res.ID,
		IssuedAt:  res.IssuedAt.Format(time.RFC3339Nano),
	})
}

// readBody reads at most one byte past the payload limit so the gateway
// can reject oversized bodies after its credential check. Read errors
// yield whatever arrived, which then fails validation.
func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	//nolint:errcheck // a short read fails validation downstream
	body, _ := io.ReadAll(io.LimitReader(r.Body, gateway.MaxPayloadBytes+1))
	return body
}
