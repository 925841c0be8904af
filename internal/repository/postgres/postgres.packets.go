// FilePath: internal/repository/postgres/postgres.packets.go
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/itsatony/meshwatch/internal/database"
	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// PacketArchiveRepo archives accepted packets to PostgreSQL.
type PacketArchiveRepo struct {
	db database.DB
}

// NewPacketArchiveRepository creates the repository and initializes its
// schema.
func NewPacketArchiveRepository(db database.DB) (*PacketArchiveRepo, error) {
	repo := &PacketArchiveRepo{db: db}
	if err := repo.initializeSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PacketArchiveRepo) initializeSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mesh_packets (
			id BIGSERIAL PRIMARY KEY,
			source_node_id TEXT NOT NULL,
			gateway_id TEXT,
			packet_kind TEXT NOT NULL,
			receive_timestamp TIMESTAMPTZ NOT NULL,
			rssi DOUBLE PRECISION,
			snr DOUBLE PRECISION,
			hop_limit INTEGER,
			hop_start INTEGER,
			payload JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mesh_packets_node_timestamp
			ON mesh_packets(source_node_id, receive_timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_mesh_packets_timestamp
			ON mesh_packets(receive_timestamp)`,
	}

	for _, query := range queries {
		if _, err := r.db.GetDB().Exec(query); err != nil {
			return errors.NewInternalError("failed to initialize archive schema", err)
		}
	}
	return nil
}

// InsertPacket appends one packet to the archive.
func (r *PacketArchiveRepo) InsertPacket(ctx context.Context, p *models.Packet) error {
	payload, err := marshalPayload(p)
	if err != nil {
		return errors.NewInternalError("failed to marshal packet payload", err)
	}

	query := `
		INSERT INTO mesh_packets
			(source_node_id, gateway_id, packet_kind, receive_timestamp,
			 rssi, snr, hop_limit, hop_start, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.GetDB().ExecContext(ctx, query,
		p.SourceNodeID,
		nullString(p.GatewayID),
		string(p.Kind),
		p.Time(),
		p.RSSI,
		p.SNR,
		p.HopLimit,
		p.HopStart,
		payload,
	)
	if err != nil {
		return errors.NewInternalError("failed to insert packet", err)
	}
	return nil
}

// GetPacketsByNode returns archived packets for a node in [start, end).
func (r *PacketArchiveRepo) GetPacketsByNode(ctx context.Context, nodeID string, start, end time.Time) ([]models.Packet, error) {
	query := `
		SELECT source_node_id, gateway_id, packet_kind, receive_timestamp,
		       rssi, snr, hop_limit, hop_start, payload
		FROM mesh_packets
		WHERE source_node_id = $1 AND receive_timestamp >= $2 AND receive_timestamp < $3
		ORDER BY receive_timestamp ASC`

	rows, err := r.db.GetDB().QueryxContext(ctx, query, nodeID, start, end)
	if err != nil {
		return nil, errors.NewInternalError("failed to query archived packets", err)
	}
	defer rows.Close()

	var packets []models.Packet
	for rows.Next() {
		var (
			p         models.Packet
			gatewayID *string
			ts        time.Time
			payload   []byte
		)
		if err := rows.Scan(&p.SourceNodeID, &gatewayID, &p.Kind, &ts,
			&p.RSSI, &p.SNR, &p.HopLimit, &p.HopStart, &payload); err != nil {
			return nil, errors.NewInternalError("failed to scan archived packet", err)
		}
		if gatewayID != nil {
			p.GatewayID = *gatewayID
		}
		p.ReceiveTimestamp = float64(ts.UnixNano()) / 1e9
		if err := unmarshalPayload(&p, payload); err != nil {
			nuts.L.Warnf("[Archive] Skipping unreadable payload for node %s: %v", p.SourceNodeID, err)
		}
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

// DeleteOldData removes archived packets older than before.
func (r *PacketArchiveRepo) DeleteOldData(ctx context.Context, before time.Time) error {
	result, err := r.db.GetDB().ExecContext(ctx,
		`DELETE FROM mesh_packets WHERE receive_timestamp < $1`, before)
	if err != nil {
		return errors.NewInternalError("failed to delete old archived packets", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		nuts.L.Infof("[Archive] Deleted %d archived packets older than %s", n, before.Format(time.RFC3339))
	}
	return nil
}

// Close releases the database connection.
func (r *PacketArchiveRepo) Close() error {
	return r.db.Close()
}

func marshalPayload(p *models.Packet) ([]byte, error) {
	switch {
	case p.Position != nil:
		return json.Marshal(p.Position)
	case p.Telemetry != nil:
		return json.Marshal(p.Telemetry)
	case p.NodeInfo != nil:
		return json.Marshal(p.NodeInfo)
	default:
		return nil, nil
	}
}

func unmarshalPayload(p *models.Packet, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	switch p.Kind {
	case models.PacketKindPosition:
		p.Position = &models.PositionPayload{}
		return json.Unmarshal(payload, p.Position)
	case models.PacketKindTelemetry:
		p.Telemetry = &models.TelemetryPayload{}
		return json.Unmarshal(payload, p.Telemetry)
	case models.PacketKindNodeInfo:
		p.NodeInfo = &models.NodeInfoPayload{}
		return json.Unmarshal(payload, p.NodeInfo)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
