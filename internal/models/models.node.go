// FilePath: internal/models/models.node.go
package models

// PositionPoint is one entry in a node's position history.
type PositionPoint struct {
	Timestamp float64 `json:"timestamp"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Origin is the configured home position of a special node.
type Origin struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NodeState is the live model of one observed node. A NodeState is created
// on the first packet referencing its id and mutated on every subsequent
// one; it is never explicitly destroyed, only emptied out by retention.
type NodeState struct {
	NodeID        string `json:"node_id"`
	DisplayName   string `json:"display_name,omitempty"`
	ShortName     string `json:"short_name,omitempty"`
	HardwareModel string `json:"hardware_model,omitempty"`

	// LastSeen is the receive timestamp of any packet from this node,
	// LastPositionUpdate that of the last Position packet.
	LastSeen           float64 `json:"last_seen"`
	LastPositionUpdate float64 `json:"last_position_update,omitempty"`

	CurrentPosition *PositionPoint `json:"current_position,omitempty"`

	BatteryPercent *float64 `json:"battery_percent,omitempty"`
	Voltage        *float64 `json:"voltage,omitempty"`

	// IsSpecial and Origin come from configuration, not from packets.
	IsSpecial bool    `json:"is_special,omitempty"`
	Origin    *Origin `json:"origin,omitempty"`

	// PositionHistory is ordered ascending by timestamp, deduplicated by
	// timestamp and ring-capped. PacketHistory is FIFO-capped for special
	// nodes and retention-pruned for the rest.
	PositionHistory []PositionPoint `json:"position_history"`
	PacketHistory   []Packet        `json:"packets"`

	// MovedFar is sticky until the node re-enters the geofence radius.
	MovedFar      bool    `json:"moved_far,omitempty"`
	LastAlertTime float64 `json:"last_alert_time,omitempty"`
}

// GatewayObservation accumulates evidence that one gateway genuinely hears
// one node. Keyed by (node, gateway) and scored purely from its own counters.
type GatewayObservation struct {
	NodeID    string `json:"node_id"`
	GatewayID string `json:"gateway_id"`

	HitCount        int `json:"hit_count"`
	DirectHitCount  int `json:"direct_hit_count"`
	PartialHitCount int `json:"partial_hit_count"`

	// AverageRSSI is the running mean over the RSSISampleCount packets
	// that actually carried an RSSI reading.
	AverageRSSI      float64 `json:"average_rssi"`
	RSSISampleCount  int     `json:"rssi_sample_count,omitempty"`
	ReliabilityScore int     `json:"reliability_score"`

	FirstSeen float64 `json:"first_seen"`
	LastSeen  float64 `json:"last_seen"`
}

// UpdateResult describes the externally visible effect of one Ingest call.
type UpdateResult struct {
	NodeID  string
	Kind    PacketKind
	Created bool
	// Changed is true when the update altered externally visible state
	// and therefore warrants scheduling a persistence save.
	Changed bool
	// GatewayUpdated is true when the packet passed the evidence filter
	// and a gateway observation was created or updated.
	GatewayUpdated bool
}

// NodeRecord is the on-disk shape of one node in the snapshot document.
// The document is a JSON object keyed by string node id; schema evolution
// is additive-only so older readers keep working. Gateways is such an
// additive field.
type NodeRecord struct {
	NodeID             string                         `json:"node_id"`
	DisplayName        string                         `json:"display_name,omitempty"`
	ShortName          string                         `json:"short_name,omitempty"`
	HardwareModel      string                         `json:"hardware_model,omitempty"`
	LastSeen           float64                        `json:"last_seen"`
	LastPositionUpdate float64                        `json:"last_position_update,omitempty"`
	CurrentPosition    *PositionPoint                 `json:"current_position,omitempty"`
	BatteryPercent     *float64                       `json:"battery_percent,omitempty"`
	Voltage            *float64                       `json:"voltage,omitempty"`
	PositionHistory    []PositionPoint                `json:"position_history"`
	Packets            []Packet                       `json:"packets"`
	MovedFar           bool                           `json:"moved_far,omitempty"`
	LastAlertTime      float64                        `json:"last_alert_time,omitempty"`
	Gateways           map[string]*GatewayObservation `json:"gateways,omitempty"`
}
