// FilePath: internal/geofence/geofence_test.go
package geofence

import (
	"testing"
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	originLat = 52.5200
	originLon = 13.4050
	// One degree of latitude is ~111195 m, so these offsets put the node
	// roughly 51 m and 10 m from the origin.
	offset51m = 0.000459
	offset10m = 0.000090
)

func testGeofenceConfig() config.GeofenceConfig {
	return config.GeofenceConfig{
		ThresholdMeters: 50.0,
		AlertCooldown:   time.Hour,
	}
}

func specialNode(lat, lon float64) *models.NodeState {
	return &models.NodeState{
		NodeID:      "!cat01",
		DisplayName: "Cat Tracker",
		IsSpecial:   true,
		Origin:      &models.Origin{Latitude: originLat, Longitude: originLon},
		CurrentPosition: &models.PositionPoint{
			Timestamp: 1700000000,
			Latitude:  lat,
			Longitude: lon,
		},
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Berlin to Potsdam city centers, ~27 km.
	d := Haversine(52.5200, 13.4050, 52.3906, 13.0645)
	assert.InDelta(t, 27200, d, 500)
}

func TestHaversine_ZeroDistance(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(originLat, originLon, originLat, originLon))
}

func TestEvaluate_AtOriginStaysInside(t *testing.T) {
	d := NewDetector(testGeofenceConfig())
	node := specialNode(originLat, originLon)

	alert, returned := d.Evaluate(node, 1700000000)
	assert.Nil(t, alert)
	assert.False(t, returned)
	assert.False(t, node.MovedFar)
}

func TestEvaluate_ExcursionAndReturn(t *testing.T) {
	d := NewDetector(testGeofenceConfig())
	node := specialNode(originLat+offset51m, originLon)

	// 51m out with a 50m threshold: one alert, moved_far sticks.
	alert, returned := d.Evaluate(node, 1700000000)
	require.NotNil(t, alert)
	assert.False(t, returned)
	assert.True(t, node.MovedFar)
	assert.Equal(t, "!cat01", alert.NodeID)
	assert.Greater(t, alert.Distance, 50.0)
	assert.Equal(t, 1700000000.0, node.LastAlertTime)

	// Still outside, inside the cooldown: silent.
	alert, returned = d.Evaluate(node, 1700000060)
	assert.Nil(t, alert)
	assert.False(t, returned)
	assert.True(t, node.MovedFar)

	// Back to 10m: silent reset, no "return" alert.
	node.CurrentPosition.Latitude = originLat + offset10m
	alert, returned = d.Evaluate(node, 1700000120)
	assert.Nil(t, alert)
	assert.True(t, returned)
	assert.False(t, node.MovedFar)
}

func TestEvaluate_CooldownRepeatAlert(t *testing.T) {
	d := NewDetector(testGeofenceConfig())
	node := specialNode(originLat+offset51m, originLon)

	alert, _ := d.Evaluate(node, 1700000000)
	require.NotNil(t, alert)

	// One second before the cooldown elapses: still silent.
	alert, _ = d.Evaluate(node, 1700000000+3599)
	assert.Nil(t, alert)

	// Cooldown elapsed while the excursion continues: one repeat alert.
	alert, _ = d.Evaluate(node, 1700000000+3600)
	require.NotNil(t, alert)
	assert.Equal(t, 1700003600.0, node.LastAlertTime)
}

func TestEvaluate_NoOriginNoFix(t *testing.T) {
	d := NewDetector(testGeofenceConfig())

	noOrigin := specialNode(originLat, originLon)
	noOrigin.Origin = nil
	alert, returned := d.Evaluate(noOrigin, 1700000000)
	assert.Nil(t, alert)
	assert.False(t, returned)

	noFix := specialNode(originLat, originLon)
	noFix.CurrentPosition = nil
	alert, returned = d.Evaluate(noFix, 1700000000)
	assert.Nil(t, alert)
	assert.False(t, returned)
}
