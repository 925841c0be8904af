// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/itsatony/meshwatch/internal/models"
)

// PacketArchive is the optional long-term sink for accepted packets. The
// in-memory store and its JSON snapshot stay authoritative; the archive is
// append-only history for offline analysis.
type PacketArchive interface {
	InsertPacket(ctx context.Context, p *models.Packet) error
	GetPacketsByNode(ctx context.Context, nodeID string, start, end time.Time) ([]models.Packet, error)
	DeleteOldData(ctx context.Context, before time.Time) error
	Close() error
}
