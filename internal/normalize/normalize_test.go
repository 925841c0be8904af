// FilePath: internal/normalize/normalize_test.go
package normalize

import (
	"testing"

	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalize_SnakeAndCamelProduceIdenticalPackets is the regression test
// for the historical bug where camelCase producers were silently dropped.
func TestNormalize_SnakeAndCamelProduceIdenticalPackets(t *testing.T) {
	snake := map[string]interface{}{
		"source_node_id":    "!a1b2c3d4",
		"receive_timestamp": 1700000000.5,
		"packet_kind":       "position",
		"gateway_id":        "!ffeeddcc",
		"hop_limit":         float64(3),
		"hop_start":         float64(3),
		"rssi":              -92.0,
		"snr":               5.25,
		"payload": map[string]interface{}{
			"latitude":  52.52,
			"longitude": 13.405,
			"altitude":  34.0,
		},
	}
	camel := map[string]interface{}{
		"sourceNodeId":     "!a1b2c3d4",
		"receiveTimestamp": 1700000000.5,
		"packetKind":       "position",
		"gatewayId":        "!ffeeddcc",
		"hopLimit":         float64(3),
		"hopStart":         float64(3),
		"rssi":             -92.0,
		"snr":              5.25,
		"payload": map[string]interface{}{
			"lat": 52.52,
			"lon": 13.405,
			"alt": 34.0,
		},
	}

	fromSnake, err := Normalize(snake)
	require.NoError(t, err)
	fromCamel, err := Normalize(camel)
	require.NoError(t, err)

	assert.Equal(t, fromSnake, fromCamel)
	assert.Equal(t, "!a1b2c3d4", fromSnake.SourceNodeID)
	assert.Equal(t, models.PacketKindPosition, fromSnake.Kind)
	require.NotNil(t, fromSnake.Position)
	assert.Equal(t, 52.52, fromSnake.Position.Latitude)
	require.NotNil(t, fromSnake.HopStart)
	assert.Equal(t, 3, *fromSnake.HopStart)
}

func TestNormalize_MissingMandatoryFields(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"no source id": {
			"receive_timestamp": 1700000000.0,
			"packet_kind":       "telemetry",
		},
		"no timestamp": {
			"source_node_id": "!a1b2c3d4",
			"packet_kind":    "telemetry",
		},
		"no kind": {
			"source_node_id":    "!a1b2c3d4",
			"receive_timestamp": 1700000000.0,
		},
		"wrong source id type": {
			"source_node_id":    float64(42),
			"receive_timestamp": 1700000000.0,
			"packet_kind":       "telemetry",
		},
		"wrong timestamp type": {
			"source_node_id":    "!a1b2c3d4",
			"receive_timestamp": "yesterday",
			"packet_kind":       "telemetry",
		},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.IsMalformedPacket(err))
		})
	}
}

func TestNormalize_NilMessage(t *testing.T) {
	_, err := Normalize(nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformedPacket(err))
}

// Unknown kinds are preserved as Other so last_seen still updates.
func TestNormalize_UnknownKindBecomesOther(t *testing.T) {
	p, err := Normalize(map[string]interface{}{
		"source_node_id":    "!a1b2c3d4",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "traceroute",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PacketKindOther, p.Kind)
	assert.Nil(t, p.Position)
	assert.Nil(t, p.Telemetry)
	assert.Nil(t, p.NodeInfo)
}

func TestNormalize_PositionWithoutCoordinatesFails(t *testing.T) {
	_, err := Normalize(map[string]interface{}{
		"source_node_id":    "!a1b2c3d4",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "position",
		"payload":           map[string]interface{}{"altitude": 12.0},
	})
	require.Error(t, err)
	assert.True(t, errors.IsMalformedPacket(err))
}

func TestNormalize_FlattenedPayload(t *testing.T) {
	p, err := Normalize(map[string]interface{}{
		"source_node_id":    "!a1b2c3d4",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "telemetry",
		"battery_level":     87.0,
		"voltage":           4.02,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Telemetry)
	require.NotNil(t, p.Telemetry.BatteryPercent)
	assert.Equal(t, 87.0, *p.Telemetry.BatteryPercent)
	require.NotNil(t, p.Telemetry.Voltage)
	assert.Equal(t, 4.02, *p.Telemetry.Voltage)
}

func TestNormalize_NodeInfoSpellings(t *testing.T) {
	p, err := Normalize(map[string]interface{}{
		"from":      "!a1b2c3d4",
		"timestamp": 1700000000.0,
		"type":      "nodeinfo",
		"payload": map[string]interface{}{
			"longName":      "Rooftop Relay",
			"shortName":     "RFR",
			"hardwareModel": "TBEAM",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, p.NodeInfo)
	assert.Equal(t, "Rooftop Relay", p.NodeInfo.LongName)
	assert.Equal(t, "RFR", p.NodeInfo.ShortName)
	assert.Equal(t, "TBEAM", p.NodeInfo.HardwareModel)
}

// HopStart absent must stay nil, never default to zero.
func TestNormalize_AbsentHopStartStaysNil(t *testing.T) {
	p, err := Normalize(map[string]interface{}{
		"source_node_id":    "!a1b2c3d4",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "telemetry",
		"hop_limit":         float64(3),
	})
	require.NoError(t, err)
	require.NotNil(t, p.HopLimit)
	assert.Nil(t, p.HopStart)
}
