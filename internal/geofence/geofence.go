// FilePath: internal/geofence/geofence.go

// Package geofence detects movement of special nodes away from their
// configured home position. Thresholds are tens of meters, so distance is
// great-circle (haversine) rather than a planar approximation: the
// latitude-dependent longitude scaling matters at higher latitudes.
package geofence

import (
	"math"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/models"
)

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// lat/lon points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// AlertEvent is emitted once per excursion (and once more per cooldown
// expiry while the excursion continues). Consumed by the external alerting
// collaborator via the event emitter.
type AlertEvent struct {
	NodeID    string  `json:"node_id"`
	Name      string  `json:"name,omitempty"`
	Distance  float64 `json:"distance_meters"`
	Timestamp float64 `json:"timestamp"`
}

// Detector is the per-node two-state machine {Inside, Outside}. It mutates
// the node's MovedFar/LastAlertTime fields in place; the caller owns the
// store lock and dispatches any returned alert after releasing it.
type Detector struct {
	cfg config.GeofenceConfig
}

// NewDetector creates a Detector with the given threshold and cooldown.
func NewDetector(cfg config.GeofenceConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Evaluate compares the node's current position to its origin and advances
// the state machine. The returned alert is non-nil when a movement alert
// should fire; returned is true on an Outside -> Inside transition (which
// resets silently, no alert).
func (d *Detector) Evaluate(node *models.NodeState, now float64) (alert *AlertEvent, returned bool) {
	if node.Origin == nil || node.CurrentPosition == nil {
		return nil, false
	}

	dist := Haversine(
		node.CurrentPosition.Latitude, node.CurrentPosition.Longitude,
		node.Origin.Latitude, node.Origin.Longitude,
	)

	if dist <= d.cfg.ThresholdMeters {
		// Re-entry resets unconditionally and silently.
		if node.MovedFar {
			node.MovedFar = false
			return nil, true
		}
		return nil, false
	}

	// Outside the fence.
	if !node.MovedFar {
		node.MovedFar = true
		node.LastAlertTime = now
		return &AlertEvent{
			NodeID:    node.NodeID,
			Name:      node.DisplayName,
			Distance:  dist,
			Timestamp: now,
		}, false
	}

	// Still outside: repeat alerts are gated by the cooldown.
	if d.cfg.AlertCooldown > 0 && now-node.LastAlertTime >= d.cfg.AlertCooldown.Seconds() {
		node.LastAlertTime = now
		return &AlertEvent{
			NodeID:    node.NodeID,
			Name:      node.DisplayName,
			Distance:  dist,
			Timestamp: now,
		}, false
	}

	return nil, false
}
