// FilePath: internal/meshservice/meshservice_test.go
package meshservice

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/gateway"
	"github.com/itsatony/meshwatch/internal/geofence"
	"github.com/itsatony/meshwatch/internal/persistence"
	"github.com/itsatony/meshwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nuts "github.com/vaudience/go-nuts"
)

const (
	originLat = 52.5200
	originLon = 13.4050
	offset51m = 0.000459
)

func testService(t *testing.T, specials ...config.SpecialNodeConfig) *MeshService {
	t.Helper()
	scorer := gateway.NewScorer(config.ScoringConfig{
		DirectHitWeight:  15,
		PartialHitWeight: 5,
		StrongRSSIFloor:  -110.0,
		Tier1MinScore:    70,
		Tier2MinScore:    50,
		Tier1Window:      7 * 24 * time.Hour,
		Tier2Window:      3 * 24 * time.Hour,
		Tier3Window:      24 * time.Hour,
	})
	detector := geofence.NewDetector(config.GeofenceConfig{
		ThresholdMeters: 50.0,
		AlertCooldown:   time.Hour,
	})
	st := store.New(config.RetentionConfig{
		HistoryWindow:      7 * 24 * time.Hour,
		SpecialPacketCap:   50,
		PositionHistoryCap: 10000,
	}, scorer, detector, specials)

	events := nuts.NewEventEmitter()
	pm := persistence.NewManager(st, config.PersistenceConfig{
		Path:       filepath.Join(t.TempDir(), "nodes.json"),
		SaveWindow: 5 * time.Second,
	}, config.RetentionConfig{HistoryWindow: 7 * 24 * time.Hour}, events)

	return New(st, pm, nil, events)
}

func TestHandleMessage_IngestsValidPacket(t *testing.T) {
	svc := testService(t)

	svc.HandleMessage("mesh/2/json/position", map[string]interface{}{
		"source_node_id":    "!node1",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "position",
		"payload": map[string]interface{}{
			"latitude":  52.0,
			"longitude": 13.0,
		},
	})

	node, err := svc.GetNode("!node1")
	require.NoError(t, err)
	assert.Equal(t, 1700000000.0, node.LastSeen)
	require.NotNil(t, node.CurrentPosition)
}

func TestHandleMessage_DropsMalformedPacket(t *testing.T) {
	svc := testService(t)

	svc.HandleMessage("mesh/2/json/position", map[string]interface{}{
		"packet_kind": "position",
	})

	assert.Equal(t, 0, svc.Store.NodeCount())
}

func TestHandleMessage_EmitsMovementAlert(t *testing.T) {
	svc := testService(t, config.SpecialNodeConfig{
		NodeID: "!cat01", Name: "Cat", OriginLat: originLat, OriginLon: originLon,
	})

	alerts := make(chan *geofence.AlertEvent, 1)
	svc.Events.On("node.moved", "test_handler", func(alert *geofence.AlertEvent) {
		alerts <- alert
	})

	svc.HandleMessage("mesh/2/json/position", map[string]interface{}{
		"source_node_id":    "!cat01",
		"receive_timestamp": 1700000000.0,
		"packet_kind":       "position",
		"payload": map[string]interface{}{
			"latitude":  originLat + offset51m,
			"longitude": originLon,
		},
	})

	select {
	case alert := <-alerts:
		assert.Equal(t, "!cat01", alert.NodeID)
		assert.Greater(t, alert.Distance, 50.0)
	case <-time.After(time.Second):
		t.Fatal("expected a node.moved event")
	}
}

func TestGetNode_UnknownIsNotFound(t *testing.T) {
	svc := testService(t)

	_, err := svc.GetNode("!missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestReload_RejectsEmptyNodeID(t *testing.T) {
	svc := testService(t)

	err := svc.Reload([]config.SpecialNodeConfig{{Name: "nameless"}})
	require.Error(t, err)
}
