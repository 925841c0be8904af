// FilePath: api/resources/api.resource.nodes.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/meshservice"
	"github.com/itsatony/meshwatch/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

// NodeHandlers encapsulates the node-related HTTP handlers
type NodeHandlers struct {
	meshservice *meshservice.MeshService
}

// HealthCheck reports service liveness and the tracked node count.
func (h *NodeHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": nuts.GetVersion(),
		"nodes":   h.meshservice.Store.NodeCount(),
	})
}

// ListNodes returns a snapshot of all tracked nodes.
func (h *NodeHandlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.meshservice.Snapshot())
}

// GetNode returns the live state of one node.
func (h *NodeHandlers) GetNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	node, err := h.meshservice.GetNode(id)
	if err != nil {
		respondWithError(w, errors.NewNotFoundError("node not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, node)
}

type historyQuery struct {
	Since float64 `schema:"since"`
}

// GetNodeHistory returns the node's position history at or after ?since=
// (epoch seconds, defaults to the whole history).
func (h *NodeHandlers) GetNodeHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	var q historyQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	history, err := h.meshservice.GetNodeHistory(id, q.Since)
	if err != nil {
		respondWithError(w, errors.NewNotFoundError("node not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}

// GetNodeGateways returns the gateway reliability observations for a node.
func (h *NodeHandlers) GetNodeGateways(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	observations := h.meshservice.GetGatewayObservations(id)
	if observations == nil {
		observations = map[string]*models.GatewayObservation{}
	}
	respondWithJSON(w, http.StatusOK, observations)
}

type packetsQuery struct {
	NodeID string `schema:"node_id"`
	Limit  int    `schema:"limit"`
}

// GetRecentPackets returns recent packets, for one node via ?node_id= or
// for all nodes, newest first, capped by ?limit=.
func (h *NodeHandlers) GetRecentPackets(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q packetsQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100 // Default limit
	}

	respondWithJSON(w, http.StatusOK, h.meshservice.GetRecentPackets(q.NodeID, q.Limit))
}

// ReloadSpecialNodes replaces the special-node configuration from the
// request body without discarding accumulated node history.
func (h *NodeHandlers) ReloadSpecialNodes(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var specials []config.SpecialNodeConfig
	if err := json.NewDecoder(r.Body).Decode(&specials); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.meshservice.Reload(specials); err != nil {
		respondWithError(w, errors.NewValidationError("invalid special node configuration", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"special_nodes": len(specials)})
}

func respondWithError(w http.ResponseWriter, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
