// FilePath: internal/store/store.go

// Package store owns all live node and gateway state. Every access path
// (transport callbacks, the save/retention timer, API readers) serializes
// through the one lock in here; nothing in this package performs I/O while
// holding it.
package store

import (
	"sort"
	"sync"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/gateway"
	"github.com/itsatony/meshwatch/internal/geofence"
	"github.com/itsatony/meshwatch/internal/models"
)

// Store is the single shared-mutable-state object of the service.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*models.NodeState
	// gateways is keyed nodeID -> gatewayID.
	gateways map[string]map[string]*models.GatewayObservation
	special  map[string]config.SpecialNodeConfig

	scorer    *gateway.Scorer
	detector  *geofence.Detector
	retention config.RetentionConfig
}

// IngestResult extends UpdateResult with the movement-detector outcome so
// the caller can dispatch alerts after the lock is released.
type IngestResult struct {
	models.UpdateResult
	Alert    *geofence.AlertEvent
	Returned bool
}

// RetentionResult reports what a retention sweep removed, for logging.
type RetentionResult struct {
	PacketsRemoved   int
	PositionsRemoved int
	GatewaysRemoved  int
}

// New creates an empty Store with the given policy components.
func New(retention config.RetentionConfig, scorer *gateway.Scorer, detector *geofence.Detector, specials []config.SpecialNodeConfig) *Store {
	s := &Store{
		nodes:     make(map[string]*models.NodeState),
		gateways:  make(map[string]map[string]*models.GatewayObservation),
		special:   make(map[string]config.SpecialNodeConfig),
		scorer:    scorer,
		detector:  detector,
		retention: retention,
	}
	for _, sn := range specials {
		s.special[sn.NodeID] = sn
	}
	return s
}

// Ingest locates or creates the NodeState for the packet's source node and
// applies the packet to it: last_seen always, kind-specific fields per kind,
// gateway evidence per the scorer policy and, for special nodes with a fix,
// the movement state machine.
func (s *Store) Ingest(p *models.Packet) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := IngestResult{}
	res.NodeID = p.SourceNodeID
	res.Kind = p.Kind

	node, exists := s.nodes[p.SourceNodeID]
	if !exists {
		node = s.newNode(p.SourceNodeID)
		s.nodes[p.SourceNodeID] = node
		res.Created = true
	}

	if p.ReceiveTimestamp > node.LastSeen {
		node.LastSeen = p.ReceiveTimestamp
	}
	s.appendPacket(node, p)
	// Appending to packet history is itself externally visible.
	res.Changed = true

	switch p.Kind {
	case models.PacketKindPosition:
		if p.Position != nil {
			s.applyPosition(node, p)
		}
	case models.PacketKindTelemetry:
		if p.Telemetry != nil {
			applyTelemetry(node, p.Telemetry)
		}
	case models.PacketKindNodeInfo:
		if p.NodeInfo != nil {
			applyNodeInfo(node, p.NodeInfo)
		}
	}

	res.GatewayUpdated = s.applyGatewayEvidence(p)

	if node.IsSpecial {
		res.Alert, res.Returned = s.detector.Evaluate(node, p.ReceiveTimestamp)
	}

	return res
}

func (s *Store) newNode(nodeID string) *models.NodeState {
	node := &models.NodeState{
		NodeID:          nodeID,
		PositionHistory: []models.PositionPoint{},
		PacketHistory:   []models.Packet{},
	}
	if sn, ok := s.special[nodeID]; ok {
		node.IsSpecial = true
		node.Origin = &models.Origin{Latitude: sn.OriginLat, Longitude: sn.OriginLon}
		if node.DisplayName == "" {
			node.DisplayName = sn.Name
		}
	}
	return node
}

func (s *Store) appendPacket(node *models.NodeState, p *models.Packet) {
	node.PacketHistory = append(node.PacketHistory, *p)
	if node.IsSpecial && s.retention.SpecialPacketCap > 0 {
		if over := len(node.PacketHistory) - s.retention.SpecialPacketCap; over > 0 {
			node.PacketHistory = node.PacketHistory[over:]
		}
	}
}

// applyPosition inserts the fix into the sorted history. The dedup key is
// the packet timestamp, not the content: retransmits carry identical
// timestamps and must not create a second entry. Out-of-order arrivals are
// insertion-sorted so the ascending-timestamp invariant always holds.
func (s *Store) applyPosition(node *models.NodeState, p *models.Packet) {
	point := models.PositionPoint{
		Timestamp: p.ReceiveTimestamp,
		Latitude:  p.Position.Latitude,
		Longitude: p.Position.Longitude,
		Altitude:  p.Position.Altitude,
	}

	idx := sort.Search(len(node.PositionHistory), func(i int) bool {
		return node.PositionHistory[i].Timestamp >= point.Timestamp
	})
	if idx < len(node.PositionHistory) && node.PositionHistory[idx].Timestamp == point.Timestamp {
		return
	}

	node.PositionHistory = append(node.PositionHistory, models.PositionPoint{})
	copy(node.PositionHistory[idx+1:], node.PositionHistory[idx:])
	node.PositionHistory[idx] = point

	if limit := s.retention.PositionHistoryCap; limit > 0 && len(node.PositionHistory) > limit {
		node.PositionHistory = node.PositionHistory[len(node.PositionHistory)-limit:]
	}

	// An older fix arriving late lands in history but never regresses the
	// current position.
	if point.Timestamp >= node.LastPositionUpdate {
		cp := point
		node.CurrentPosition = &cp
		node.LastPositionUpdate = point.Timestamp
	}
}

func applyTelemetry(node *models.NodeState, t *models.TelemetryPayload) {
	if t.BatteryPercent != nil {
		v := *t.BatteryPercent
		node.BatteryPercent = &v
	}
	if t.Voltage != nil {
		v := *t.Voltage
		node.Voltage = &v
	}
}

func applyNodeInfo(node *models.NodeState, info *models.NodeInfoPayload) {
	if info.LongName != "" {
		node.DisplayName = info.LongName
	}
	if info.ShortName != "" {
		node.ShortName = info.ShortName
	}
	if info.HardwareModel != "" {
		node.HardwareModel = info.HardwareModel
	}
}

func (s *Store) applyGatewayEvidence(p *models.Packet) bool {
	ev := s.scorer.Classify(p)
	if ev == gateway.EvidenceRejected {
		return false
	}

	byGateway, ok := s.gateways[p.SourceNodeID]
	if !ok {
		byGateway = make(map[string]*models.GatewayObservation)
		s.gateways[p.SourceNodeID] = byGateway
	}
	obs, ok := byGateway[p.GatewayID]
	if !ok {
		obs = &models.GatewayObservation{
			NodeID:    p.SourceNodeID,
			GatewayID: p.GatewayID,
		}
		byGateway[p.GatewayID] = obs
	}
	s.scorer.Apply(obs, p, ev)
	return true
}

// Snapshot returns a deep copy of all node state. The lock is held for the
// duration of the copy only, never for subsequent I/O.
func (s *Store) Snapshot() map[string]*models.NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.NodeState, len(s.nodes))
	for id, node := range s.nodes {
		out[id] = copyNode(node)
	}
	return out
}

// GetNode returns a copy of one node's state, or nil when unknown.
func (s *Store) GetNode(nodeID string) *models.NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil
	}
	return copyNode(node)
}

// GetNodeHistory returns the node's position history at or after since,
// ordered ascending by timestamp.
func (s *Store) GetNodeHistory(nodeID string, since float64) []models.PositionPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil
	}
	idx := sort.Search(len(node.PositionHistory), func(i int) bool {
		return node.PositionHistory[i].Timestamp >= since
	})
	out := make([]models.PositionPoint, len(node.PositionHistory)-idx)
	copy(out, node.PositionHistory[idx:])
	return out
}

// GetRecentPackets returns up to limit packets, newest first. With an empty
// nodeID the packets of all nodes are merged.
func (s *Store) GetRecentPackets(nodeID string, limit int) []models.Packet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var packets []models.Packet
	if nodeID != "" {
		node, ok := s.nodes[nodeID]
		if !ok {
			return nil
		}
		packets = append(packets, node.PacketHistory...)
	} else {
		for _, node := range s.nodes {
			packets = append(packets, node.PacketHistory...)
		}
	}

	sort.Slice(packets, func(i, j int) bool {
		return packets[i].ReceiveTimestamp > packets[j].ReceiveTimestamp
	})
	if limit > 0 && len(packets) > limit {
		packets = packets[:limit]
	}
	return packets
}

// GatewayObservations returns a copy of all observations for a node.
func (s *Store) GatewayObservations(nodeID string) map[string]*models.GatewayObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byGateway, ok := s.gateways[nodeID]
	if !ok {
		return nil
	}
	out := make(map[string]*models.GatewayObservation, len(byGateway))
	for id, obs := range byGateway {
		cp := *obs
		out[id] = &cp
	}
	return out
}

// ApplyRetention removes history entries older than cutoff and gateway
// observations older than their tier window. The most recent packet and
// position of each node always survive, even when older than the cutoff:
// liveness over data hygiene.
func (s *Store) ApplyRetention(cutoff float64, now float64) RetentionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res RetentionResult
	for _, node := range s.nodes {
		// Special nodes are FIFO-capped instead of retention-pruned.
		if !node.IsSpecial {
			node.PacketHistory, res.PacketsRemoved = prunePackets(node.PacketHistory, cutoff, res.PacketsRemoved)
		}
		node.PositionHistory, res.PositionsRemoved = prunePositions(node.PositionHistory, cutoff, res.PositionsRemoved)
	}

	for nodeID, byGateway := range s.gateways {
		for gatewayID, obs := range byGateway {
			window := s.scorer.RetentionWindow(obs.ReliabilityScore).Seconds()
			if now-obs.LastSeen > window {
				delete(byGateway, gatewayID)
				res.GatewaysRemoved++
			}
		}
		if len(byGateway) == 0 {
			delete(s.gateways, nodeID)
		}
	}

	return res
}

func prunePackets(packets []models.Packet, cutoff float64, removed int) ([]models.Packet, int) {
	if len(packets) <= 1 {
		return packets, removed
	}
	// Arrival order, so find the newest explicitly.
	newest := 0
	for i := range packets {
		if packets[i].ReceiveTimestamp >= packets[newest].ReceiveTimestamp {
			newest = i
		}
	}
	kept := packets[:0]
	for i := range packets {
		if i == newest || packets[i].ReceiveTimestamp >= cutoff {
			kept = append(kept, packets[i])
		} else {
			removed++
		}
	}
	return kept, removed
}

func prunePositions(points []models.PositionPoint, cutoff float64, removed int) ([]models.PositionPoint, int) {
	if len(points) <= 1 {
		return points, removed
	}
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp >= cutoff
	})
	if idx == len(points) {
		// Everything is stale; the most recent point survives anyway.
		idx = len(points) - 1
	}
	if idx == 0 {
		return points, removed
	}
	removed += idx
	kept := make([]models.PositionPoint, len(points)-idx)
	copy(kept, points[idx:])
	return kept, removed
}

// Reload replaces the special-node configuration and recomputes each
// node's origin without discarding accumulated history.
func (s *Store) Reload(specials []config.SpecialNodeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.special = make(map[string]config.SpecialNodeConfig, len(specials))
	for _, sn := range specials {
		s.special[sn.NodeID] = sn
	}

	for id, node := range s.nodes {
		sn, ok := s.special[id]
		if !ok {
			node.IsSpecial = false
			node.Origin = nil
			node.MovedFar = false
			continue
		}
		node.IsSpecial = true
		node.Origin = &models.Origin{Latitude: sn.OriginLat, Longitude: sn.OriginLon}
		if node.DisplayName == "" {
			node.DisplayName = sn.Name
		}
	}
}

// Export produces the on-disk document: a deep copy taken under the lock,
// marshaled and written by the persistence manager after release.
func (s *Store) Export() map[string]*models.NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.NodeRecord, len(s.nodes))
	for id, node := range s.nodes {
		rec := &models.NodeRecord{
			NodeID:             node.NodeID,
			DisplayName:        node.DisplayName,
			ShortName:          node.ShortName,
			HardwareModel:      node.HardwareModel,
			LastSeen:           node.LastSeen,
			LastPositionUpdate: node.LastPositionUpdate,
			BatteryPercent:     copyFloatPtr(node.BatteryPercent),
			Voltage:            copyFloatPtr(node.Voltage),
			MovedFar:           node.MovedFar,
			LastAlertTime:      node.LastAlertTime,
			PositionHistory:    append([]models.PositionPoint{}, node.PositionHistory...),
			Packets:            append([]models.Packet{}, node.PacketHistory...),
		}
		if node.CurrentPosition != nil {
			cp := *node.CurrentPosition
			rec.CurrentPosition = &cp
		}
		if byGateway, ok := s.gateways[id]; ok && len(byGateway) > 0 {
			rec.Gateways = make(map[string]*models.GatewayObservation, len(byGateway))
			for gwID, obs := range byGateway {
				cp := *obs
				rec.Gateways[gwID] = &cp
			}
		}
		out[id] = rec
	}
	return out
}

// Restore rebuilds state from a loaded snapshot document. The current
// special-node configuration wins over whatever the snapshot carried.
func (s *Store) Restore(records map[string]*models.NodeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range records {
		if id == "" || rec == nil {
			continue
		}
		node := &models.NodeState{
			NodeID:             id,
			DisplayName:        rec.DisplayName,
			ShortName:          rec.ShortName,
			HardwareModel:      rec.HardwareModel,
			LastSeen:           rec.LastSeen,
			LastPositionUpdate: rec.LastPositionUpdate,
			BatteryPercent:     copyFloatPtr(rec.BatteryPercent),
			Voltage:            copyFloatPtr(rec.Voltage),
			MovedFar:           rec.MovedFar,
			LastAlertTime:      rec.LastAlertTime,
			PositionHistory:    append([]models.PositionPoint{}, rec.PositionHistory...),
			PacketHistory:      append([]models.Packet{}, rec.Packets...),
		}
		if rec.CurrentPosition != nil {
			cp := *rec.CurrentPosition
			node.CurrentPosition = &cp
		}
		sort.Slice(node.PositionHistory, func(i, j int) bool {
			return node.PositionHistory[i].Timestamp < node.PositionHistory[j].Timestamp
		})
		if sn, ok := s.special[id]; ok {
			node.IsSpecial = true
			node.Origin = &models.Origin{Latitude: sn.OriginLat, Longitude: sn.OriginLon}
			if node.DisplayName == "" {
				node.DisplayName = sn.Name
			}
		}
		s.nodes[id] = node

		if len(rec.Gateways) > 0 {
			byGateway := make(map[string]*models.GatewayObservation, len(rec.Gateways))
			for gwID, obs := range rec.Gateways {
				if obs == nil {
					continue
				}
				cp := *obs
				byGateway[gwID] = &cp
			}
			s.gateways[id] = byGateway
		}
	}
}

// NodeCount returns the number of tracked nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func copyNode(node *models.NodeState) *models.NodeState {
	cp := *node
	cp.PositionHistory = append([]models.PositionPoint{}, node.PositionHistory...)
	cp.PacketHistory = append([]models.Packet{}, node.PacketHistory...)
	if node.CurrentPosition != nil {
		pos := *node.CurrentPosition
		cp.CurrentPosition = &pos
	}
	if node.Origin != nil {
		origin := *node.Origin
		cp.Origin = &origin
	}
	cp.BatteryPercent = copyFloatPtr(node.BatteryPercent)
	cp.Voltage = copyFloatPtr(node.Voltage)
	return &cp
}

func copyFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
