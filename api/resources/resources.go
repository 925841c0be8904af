// FilePath: api/resources/resources.go
package resources

import (
	"github.com/itsatony/meshwatch/internal/meshservice"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Nodes *NodeHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *meshservice.MeshService) *Resources {
	return &Resources{
		Nodes: &NodeHandlers{meshservice: svc},
	}
}
