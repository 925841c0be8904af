// FilePath: internal/gateway/scorer.go

// Package gateway implements the reliability policy deciding whether a
// relayed packet is trustworthy evidence that a gateway actually heard a
// node. Naive gateway detection produces roughly an order of magnitude more
// false positives than true gateways; the evidence filter plus asymmetric
// tier retention is what suppresses them.
package gateway

import (
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/models"
)

// Evidence classifies one packet as gateway-hearing evidence.
type Evidence int

const (
	// EvidenceRejected means the packet must not update any score.
	EvidenceRejected Evidence = iota
	// EvidenceDirect means zero-hop reception (hop_start == hop_limit).
	EvidenceDirect
	// EvidencePartial means hops were consumed but a strong RSSI
	// independently corroborates proximity.
	EvidencePartial
)

// Scorer applies the configured reliability policy. It is stateless; the
// observations it updates live in the node state store.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a Scorer with the given policy constants.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Classify decides whether the packet counts as evidence that its gateway
// heard the source node. Rejections, in order:
//   - no gateway attribution at all
//   - RSSI present but below the noise floor
//   - hop_start absent: direct vs. multi-hop cannot be determined
//   - hops consumed without a strong RSSI to corroborate proximity
func (s *Scorer) Classify(p *models.Packet) Evidence {
	if p.GatewayID == "" {
		return EvidenceRejected
	}
	if p.RSSI != nil && *p.RSSI < s.cfg.StrongRSSIFloor {
		return EvidenceRejected
	}
	if p.HopStart == nil || p.HopLimit == nil {
		return EvidenceRejected
	}
	consumed := *p.HopStart - *p.HopLimit
	if consumed == 0 {
		return EvidenceDirect
	}
	if consumed > 0 && p.RSSI != nil && *p.RSSI >= s.cfg.StrongRSSIFloor {
		return EvidencePartial
	}
	return EvidenceRejected
}

// Apply folds one accepted packet into the observation and recomputes the
// reliability score. The caller owns locking and has already classified the
// packet as Direct or Partial.
func (s *Scorer) Apply(obs *models.GatewayObservation, p *models.Packet, ev Evidence) {
	obs.HitCount++
	switch ev {
	case EvidenceDirect:
		obs.DirectHitCount++
	case EvidencePartial:
		obs.PartialHitCount++
	}
	if p.RSSI != nil {
		obs.RSSISampleCount++
		obs.AverageRSSI += (*p.RSSI - obs.AverageRSSI) / float64(obs.RSSISampleCount)
	}
	if obs.FirstSeen == 0 || p.ReceiveTimestamp < obs.FirstSeen {
		obs.FirstSeen = p.ReceiveTimestamp
	}
	if p.ReceiveTimestamp > obs.LastSeen {
		obs.LastSeen = p.ReceiveTimestamp
	}
	obs.ReliabilityScore = s.Score(obs)
}

// Score computes the clamped reliability score from the observation's own
// counters. No cross-node comparison enters the score.
func (s *Scorer) Score(obs *models.GatewayObservation) int {
	score := obs.DirectHitCount*s.cfg.DirectHitWeight + obs.PartialHitCount*s.cfg.PartialHitWeight
	if score > 100 {
		score = 100
	}
	return score
}

// RetentionWindow returns how long an observation with the given score is
// kept before a retention sweep evicts it. Repeatedly-confirmed direct
// gateways persist a week; spurious single partial hits age out in a day.
func (s *Scorer) RetentionWindow(score int) time.Duration {
	switch {
	case score >= s.cfg.Tier1MinScore:
		return s.cfg.Tier1Window
	case score >= s.cfg.Tier2MinScore:
		return s.cfg.Tier2Window
	default:
		return s.cfg.Tier3Window
	}
}
