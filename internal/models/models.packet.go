// FilePath: internal/models/models.packet.go
package models

import "time"

// PacketKind identifies the payload family of a mesh packet.
type PacketKind string

const (
	PacketKindPosition  PacketKind = "position"
	PacketKindTelemetry PacketKind = "telemetry"
	PacketKindNodeInfo  PacketKind = "nodeinfo"
	PacketKindMapReport PacketKind = "mapreport"
	PacketKindOther     PacketKind = "other"
)

// Packet is the canonical, immutable form of one received mesh message.
// It is created by the normalizer at ingestion and never mutated afterwards;
// downstream consumers hold it by value only.
type Packet struct {
	SourceNodeID     string     `json:"source_node_id"`
	ReceiveTimestamp float64    `json:"receive_timestamp"`
	Kind             PacketKind `json:"packet_kind"`

	// Mesh-routing counters. HopStart is nil when the sender never
	// populated the field, which is different from zero.
	HopLimit *int `json:"hop_limit,omitempty"`
	HopStart *int `json:"hop_start,omitempty"`

	// Radio metadata as measured by the receiving gateway.
	RSSI *float64 `json:"rssi,omitempty"`
	SNR  *float64 `json:"snr,omitempty"`

	// GatewayID is the node id of the radio that delivered this packet
	// to the broker. It may equal SourceNodeID for self-reported packets.
	GatewayID string `json:"gateway_id,omitempty"`

	// Kind-specific payloads. Exactly one is set for the typed kinds,
	// all are nil for MapReport/Other.
	Position  *PositionPayload  `json:"position,omitempty"`
	Telemetry *TelemetryPayload `json:"telemetry,omitempty"`
	NodeInfo  *NodeInfoPayload  `json:"nodeinfo,omitempty"`
}

// PositionPayload carries a GPS fix.
type PositionPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// TelemetryPayload carries device metrics.
type TelemetryPayload struct {
	BatteryPercent     *float64 `json:"battery_percent,omitempty"`
	Voltage            *float64 `json:"voltage,omitempty"`
	ChannelUtilization *float64 `json:"channel_utilization,omitempty"`
}

// NodeInfoPayload carries node identity announcements.
type NodeInfoPayload struct {
	LongName      string `json:"long_name"`
	ShortName     string `json:"short_name"`
	HardwareModel string `json:"hardware_model"`
}

// Time converts the packet's receive timestamp to a time.Time.
func (p *Packet) Time() time.Time {
	sec := int64(p.ReceiveTimestamp)
	nsec := int64((p.ReceiveTimestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// IsDirect reports whether the hop counters prove zero-hop reception:
// the packet arrived at the gateway with no hops consumed.
func (p *Packet) IsDirect() bool {
	return p.HopStart != nil && p.HopLimit != nil && *p.HopStart == *p.HopLimit
}

// HopsConsumed returns the number of relays the packet traversed, or -1
// when the hop counters do not allow that determination.
func (p *Packet) HopsConsumed() int {
	if p.HopStart == nil || p.HopLimit == nil {
		return -1
	}
	return *p.HopStart - *p.HopLimit
}
