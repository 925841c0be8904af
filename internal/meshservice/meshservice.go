// FilePath: internal/meshservice/meshservice.go
package meshservice

import (
	"context"
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/models"
	"github.com/itsatony/meshwatch/internal/normalize"
	"github.com/itsatony/meshwatch/internal/persistence"
	"github.com/itsatony/meshwatch/internal/repository"
	"github.com/itsatony/meshwatch/internal/store"
	nuts "github.com/vaudience/go-nuts"
)

const archiveInsertTimeout = 5 * time.Second

// MeshService contains the state store, the persistence manager and
// service-wide dependencies. It is the single entry point for the transport
// consumer and for the API layer.
type MeshService struct {
	Store       *store.Store
	Persistence *persistence.Manager
	Archive     repository.PacketArchive // nil when no archive is configured
	Events      *nuts.EventEmitter
}

// New creates a new MeshService instance
func New(st *store.Store, pm *persistence.Manager, archive repository.PacketArchive, events *nuts.EventEmitter) *MeshService {
	return &MeshService{
		Store:       st,
		Persistence: pm,
		Archive:     archive,
		Events:      events,
	}
}

// HandleMessage consumes one delivered transport message. Malformed packets
// are logged and dropped; they never reach the store. Ingestion never
// blocks on persistence: saves are only scheduled here, and archive inserts
// run on their own goroutine.
func (s *MeshService) HandleMessage(topic string, raw map[string]interface{}) {
	packet, err := normalize.Normalize(raw)
	if err != nil {
		nuts.L.Warnf("[MeshService] Dropping malformed packet on %s: %v", topic, err)
		return
	}

	res := s.Store.Ingest(packet)

	if res.Created {
		nuts.L.Infof("[MeshService] New node %s (first packet: %s)", res.NodeID, res.Kind)
		s.Events.Emit("node.created", res.NodeID)
	}
	if res.Alert != nil {
		nuts.L.Warnf("[MeshService] Node %s moved %.1fm from origin", res.Alert.NodeID, res.Alert.Distance)
		s.Events.Emit("node.moved", res.Alert)
	}
	if res.Returned {
		nuts.L.Infof("[MeshService] Node %s returned inside its geofence", res.NodeID)
		s.Events.Emit("node.returned", res.NodeID)
	}

	if res.Changed {
		s.Persistence.MarkDirty()
	}

	if s.Archive != nil {
		go s.archivePacket(packet)
	}
}

func (s *MeshService) archivePacket(p *models.Packet) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveInsertTimeout)
	defer cancel()
	if err := s.Archive.InsertPacket(ctx, p); err != nil {
		nuts.L.Errorf("[MeshService] Archive insert failed for node %s: %v", p.SourceNodeID, err)
	}
}

// Reload applies a new special-node configuration. Origins are recomputed
// in place; accumulated history survives.
func (s *MeshService) Reload(specials []config.SpecialNodeConfig) error {
	for _, sn := range specials {
		if sn.NodeID == "" {
			return errors.NewValidationError("special node entries require a node_id", nil)
		}
	}
	s.Store.Reload(specials)
	s.Persistence.MarkDirty()
	nuts.L.Infof("[MeshService] Reloaded special node configuration (%d nodes)", len(specials))
	return nil
}

// Snapshot exposes a read-only copy of all node state.
func (s *MeshService) Snapshot() map[string]*models.NodeState {
	return s.Store.Snapshot()
}

// GetNode returns a copy of one node's state.
func (s *MeshService) GetNode(nodeID string) (*models.NodeState, error) {
	node := s.Store.GetNode(nodeID)
	if node == nil {
		return nil, errors.NewNotFoundError("node not found", nil)
	}
	return node, nil
}

// GetNodeHistory returns a node's position history at or after since.
func (s *MeshService) GetNodeHistory(nodeID string, since float64) ([]models.PositionPoint, error) {
	history := s.Store.GetNodeHistory(nodeID, since)
	if history == nil {
		return nil, errors.NewNotFoundError("node not found", nil)
	}
	return history, nil
}

// GetRecentPackets returns recent packets for one node, or for all nodes
// when nodeID is empty.
func (s *MeshService) GetRecentPackets(nodeID string, limit int) []models.Packet {
	return s.Store.GetRecentPackets(nodeID, limit)
}

// GetGatewayObservations returns the reliability observations for a node.
func (s *MeshService) GetGatewayObservations(nodeID string) map[string]*models.GatewayObservation {
	return s.Store.GatewayObservations(nodeID)
}
