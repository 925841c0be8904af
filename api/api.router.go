// FilePath: api/api.router.go
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/meshwatch/api/resources"
	"github.com/itsatony/meshwatch/internal/meshservice"
)

type Router struct {
	router    *mux.Router
	resources *resources.Resources
}

// NewRouter builds the read-only API over the mesh service. There is no
// authentication or rate limiting here; this surface is meant to sit behind
// whatever gateway the deployment provides.
func NewRouter(svc *meshservice.MeshService) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		resources: resources.NewResources(svc),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", r.resources.Nodes.HealthCheck).Methods(http.MethodGet)

	// Nodes
	nodes := api.PathPrefix("/nodes").Subrouter()
	nodes.HandleFunc("", r.resources.Nodes.ListNodes).Methods(http.MethodGet)
	nodes.HandleFunc("/{id}", r.resources.Nodes.GetNode).Methods(http.MethodGet)
	nodes.HandleFunc("/{id}/history", r.resources.Nodes.GetNodeHistory).Methods(http.MethodGet)
	nodes.HandleFunc("/{id}/gateways", r.resources.Nodes.GetNodeGateways).Methods(http.MethodGet)

	// Packets
	api.HandleFunc("/packets", r.resources.Nodes.GetRecentPackets).Methods(http.MethodGet)

	// Configuration reload
	api.HandleFunc("/reload", r.resources.Nodes.ReloadSpecialNodes).Methods(http.MethodPost)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
