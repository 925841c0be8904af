// FilePath: internal/gateway/scorer_test.go
package gateway

import (
	"testing"
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/models"
	"github.com/stretchr/testify/assert"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		DirectHitWeight:  15,
		PartialHitWeight: 5,
		StrongRSSIFloor:  -110.0,
		Tier1MinScore:    70,
		Tier2MinScore:    50,
		Tier1Window:      7 * 24 * time.Hour,
		Tier2Window:      3 * 24 * time.Hour,
		Tier3Window:      24 * time.Hour,
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func evidencePacket(hopStart, hopLimit *int, rssi *float64) *models.Packet {
	return &models.Packet{
		SourceNodeID:     "!node",
		GatewayID:        "!gw",
		ReceiveTimestamp: 1700000000,
		Kind:             models.PacketKindPosition,
		HopStart:         hopStart,
		HopLimit:         hopLimit,
		RSSI:             rssi,
	}
}

func TestClassify(t *testing.T) {
	s := NewScorer(testScoringConfig())

	cases := []struct {
		name   string
		packet *models.Packet
		want   Evidence
	}{
		{"zero hops consumed is direct", evidencePacket(intPtr(3), intPtr(3), nil), EvidenceDirect},
		{"zero hops with strong rssi is direct", evidencePacket(intPtr(3), intPtr(3), floatPtr(-80)), EvidenceDirect},
		{"hop_start absent is rejected", evidencePacket(nil, intPtr(3), floatPtr(-80)), EvidenceRejected},
		{"hop_limit absent is rejected", evidencePacket(intPtr(3), nil, floatPtr(-80)), EvidenceRejected},
		{"relay without rssi is rejected", evidencePacket(intPtr(3), intPtr(1), nil), EvidenceRejected},
		{"relay with strong rssi is partial", evidencePacket(intPtr(3), intPtr(1), floatPtr(-95)), EvidencePartial},
		{"relay with rssi below floor is rejected", evidencePacket(intPtr(3), intPtr(1), floatPtr(-118)), EvidenceRejected},
		{"direct with rssi below floor is rejected", evidencePacket(intPtr(3), intPtr(3), floatPtr(-115)), EvidenceRejected},
		{"rssi exactly at floor is accepted", evidencePacket(intPtr(3), intPtr(3), floatPtr(-110)), EvidenceDirect},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Classify(tc.packet))
		})
	}
}

func TestClassify_NoGatewayRejected(t *testing.T) {
	s := NewScorer(testScoringConfig())
	p := evidencePacket(intPtr(3), intPtr(3), nil)
	p.GatewayID = ""
	assert.Equal(t, EvidenceRejected, s.Classify(p))
}

// Ten direct hits: 10*15 = 150, clamped to 100.
func TestScore_TenDirectHitsCapsAtHundred(t *testing.T) {
	s := NewScorer(testScoringConfig())
	obs := &models.GatewayObservation{NodeID: "!node", GatewayID: "!gw"}

	for i := 0; i < 10; i++ {
		p := evidencePacket(intPtr(3), intPtr(3), floatPtr(-90))
		p.ReceiveTimestamp = 1700000000 + float64(i)
		s.Apply(obs, p, EvidenceDirect)
	}

	assert.Equal(t, 10, obs.HitCount)
	assert.Equal(t, 10, obs.DirectHitCount)
	assert.Equal(t, 0, obs.PartialHitCount)
	assert.Equal(t, 100, obs.ReliabilityScore)
	assert.InDelta(t, -90.0, obs.AverageRSSI, 0.001)
	assert.Equal(t, 1700000000.0, obs.FirstSeen)
	assert.Equal(t, 1700000009.0, obs.LastSeen)
}

func TestScore_PartialHitsOnly(t *testing.T) {
	s := NewScorer(testScoringConfig())
	obs := &models.GatewayObservation{NodeID: "!node", GatewayID: "!gw"}

	for i := 0; i < 3; i++ {
		p := evidencePacket(intPtr(3), intPtr(1), floatPtr(-100))
		s.Apply(obs, p, EvidencePartial)
	}

	assert.Equal(t, 15, obs.ReliabilityScore)
}

func TestRetentionWindow_Tiers(t *testing.T) {
	s := NewScorer(testScoringConfig())

	assert.Equal(t, 7*24*time.Hour, s.RetentionWindow(100))
	assert.Equal(t, 7*24*time.Hour, s.RetentionWindow(70))
	assert.Equal(t, 3*24*time.Hour, s.RetentionWindow(69))
	assert.Equal(t, 3*24*time.Hour, s.RetentionWindow(50))
	assert.Equal(t, 24*time.Hour, s.RetentionWindow(49))
	assert.Equal(t, 24*time.Hour, s.RetentionWindow(0))
}

func TestApply_AverageRSSISkipsMissingReadings(t *testing.T) {
	s := NewScorer(testScoringConfig())
	obs := &models.GatewayObservation{NodeID: "!node", GatewayID: "!gw"}

	s.Apply(obs, evidencePacket(intPtr(3), intPtr(3), floatPtr(-80)), EvidenceDirect)
	s.Apply(obs, evidencePacket(intPtr(3), intPtr(3), nil), EvidenceDirect)

	assert.Equal(t, 2, obs.HitCount)
	// A packet without RSSI leaves the running mean untouched.
	assert.InDelta(t, -80.0, obs.AverageRSSI, 0.001)
}
