// FilePath: internal/normalize/normalize.go

// Package normalize converts raw decoded transport messages into canonical
// Packet records. Producers on the mesh disagree about field naming (some
// publish camelCase, some snake_case); everything downstream of this
// package sees a single canonical spelling. Normalization is a pure
// function of its input and has no side effects.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/models"
)

// Normalize validates a raw decoded message and returns the canonical
// Packet, or a MalformedPacket error when a mandatory field (source id,
// timestamp, kind) is absent or of the wrong type. Unrecognized kinds are
// preserved as PacketKindOther so the store can still update last_seen.
func Normalize(raw map[string]interface{}) (*models.Packet, error) {
	if raw == nil {
		return nil, errors.NewMalformedPacketError("empty message", nil)
	}

	sourceID, ok := stringField(raw, "source_node_id", "sourceNodeId", "from", "from_id", "fromId")
	if !ok || sourceID == "" {
		return nil, errors.NewMalformedPacketError("missing source node id", nil)
	}

	ts, ok := floatField(raw, "receive_timestamp", "receiveTimestamp", "rx_time", "rxTime", "timestamp")
	if !ok {
		return nil, errors.NewMalformedPacketError(
			fmt.Sprintf("missing or invalid timestamp for node %s", sourceID), nil)
	}

	kindRaw, ok := stringField(raw, "packet_kind", "packetKind", "type")
	if !ok {
		return nil, errors.NewMalformedPacketError(
			fmt.Sprintf("missing packet kind for node %s", sourceID), nil)
	}

	p := &models.Packet{
		SourceNodeID:     sourceID,
		ReceiveTimestamp: ts,
		Kind:             parseKind(kindRaw),
	}

	if gw, ok := stringField(raw, "gateway_id", "gatewayId", "gateway"); ok {
		p.GatewayID = gw
	}
	if hl, ok := intField(raw, "hop_limit", "hopLimit"); ok {
		p.HopLimit = &hl
	}
	if hs, ok := intField(raw, "hop_start", "hopStart"); ok {
		p.HopStart = &hs
	}
	if rssi, ok := floatField(raw, "rssi", "rx_rssi", "rxRssi"); ok {
		p.RSSI = &rssi
	}
	if snr, ok := floatField(raw, "snr", "rx_snr", "rxSnr"); ok {
		p.SNR = &snr
	}

	payload := payloadMap(raw)

	switch p.Kind {
	case models.PacketKindPosition:
		pos, err := normalizePosition(payload, sourceID)
		if err != nil {
			return nil, err
		}
		p.Position = pos
	case models.PacketKindTelemetry:
		p.Telemetry = normalizeTelemetry(payload)
	case models.PacketKindNodeInfo:
		p.NodeInfo = normalizeNodeInfo(payload)
	}

	return p, nil
}

// parseKind maps producer kind spellings onto the canonical enum. Unknown
// values become Other rather than failing the packet.
func parseKind(raw string) models.PacketKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "position":
		return models.PacketKindPosition
	case "telemetry":
		return models.PacketKindTelemetry
	case "nodeinfo", "node_info", "user":
		return models.PacketKindNodeInfo
	case "mapreport", "map_report":
		return models.PacketKindMapReport
	default:
		return models.PacketKindOther
	}
}

// payloadMap returns the kind-specific payload object. Producers either
// nest it under "payload" or flatten it into the envelope; both are
// accepted, with the envelope as fallback.
func payloadMap(raw map[string]interface{}) map[string]interface{} {
	if nested, ok := raw["payload"].(map[string]interface{}); ok {
		return nested
	}
	return raw
}

func normalizePosition(payload map[string]interface{}, sourceID string) (*models.PositionPayload, error) {
	lat, okLat := floatField(payload, "latitude", "lat", "latitude_i")
	lon, okLon := floatField(payload, "longitude", "lon", "lng", "longitude_i")
	if !okLat || !okLon {
		return nil, errors.NewMalformedPacketError(
			fmt.Sprintf("position packet without coordinates from node %s", sourceID), nil)
	}
	pos := &models.PositionPayload{Latitude: lat, Longitude: lon}
	if alt, ok := floatField(payload, "altitude", "alt"); ok {
		pos.Altitude = alt
	}
	return pos, nil
}

func normalizeTelemetry(payload map[string]interface{}) *models.TelemetryPayload {
	t := &models.TelemetryPayload{}
	if v, ok := floatField(payload, "battery_percent", "batteryPercent", "battery_level", "batteryLevel"); ok {
		t.BatteryPercent = &v
	}
	if v, ok := floatField(payload, "voltage"); ok {
		t.Voltage = &v
	}
	if v, ok := floatField(payload, "channel_utilization", "channelUtilization"); ok {
		t.ChannelUtilization = &v
	}
	return t
}

func normalizeNodeInfo(payload map[string]interface{}) *models.NodeInfoPayload {
	info := &models.NodeInfoPayload{}
	if v, ok := stringField(payload, "long_name", "longName", "longname"); ok {
		info.LongName = v
	}
	if v, ok := stringField(payload, "short_name", "shortName", "shortname"); ok {
		info.ShortName = v
	}
	if v, ok := stringField(payload, "hardware_model", "hardwareModel", "hardware"); ok {
		info.HardwareModel = v
	}
	return info
}

// stringField returns the first present name as a string. Lookup is
// case-sensitive on purpose: the accepted spellings are enumerated
// explicitly so a new producer variant is a conscious addition, not an
// accidental match.
func stringField(raw map[string]interface{}, names ...string) (string, bool) {
	for _, name := range names {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// floatField returns the first present name coerced to float64. JSON
// decoding yields float64 for all numbers, but json.Number and native ints
// show up from other decoders and are accepted too.
func floatField(raw map[string]interface{}, names ...string) (float64, bool) {
	for _, name := range names {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func intField(raw map[string]interface{}, names ...string) (int, bool) {
	if f, ok := floatField(raw, names...); ok {
		return int(f), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
