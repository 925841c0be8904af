// FilePath: internal/persistence/persistence.go

// Package persistence decides when the node state store is pruned and
// durably snapshotted. Saves coalesce through a throttle window so a busy
// mesh never writes more than one snapshot per window; shutdown forces one
// final save regardless. Ingestion never blocks on any of this: a slow disk
// only delays the next save.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/errors"
	"github.com/itsatony/meshwatch/internal/models"
	"github.com/itsatony/meshwatch/internal/store"
	nuts "github.com/vaudience/go-nuts"
)

// Manager owns the snapshot file and the save/retention loop.
type Manager struct {
	store     *store.Store
	cfg       config.PersistenceConfig
	retention config.RetentionConfig
	events    *nuts.EventEmitter

	mu       sync.Mutex
	dirty    bool
	lastSave time.Time

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewManager creates a Manager for the given store. Call Load before Start.
func NewManager(st *store.Store, cfg config.PersistenceConfig, retention config.RetentionConfig, events *nuts.EventEmitter) *Manager {
	return &Manager{
		store:     st,
		cfg:       cfg,
		retention: retention,
		events:    events,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Load restores the store from the snapshot file. A missing or unparsable
// snapshot is not fatal: the store starts empty and rebuilds from the live
// stream. The error return is always nil today; it stays in the signature
// for callers that want to treat future load modes differently.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			nuts.L.Infof("[Persistence] No snapshot at %s, starting empty", m.cfg.Path)
			return nil
		}
		readErr := errors.NewPersistenceReadError("failed to read snapshot", err)
		nuts.L.Errorf("[Persistence] %s, starting empty", readErr.Error())
		return nil
	}

	var records map[string]*models.NodeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		readErr := errors.NewPersistenceReadError("snapshot is corrupt, treating as missing", err)
		nuts.L.Errorf("[Persistence] %s (path=%s)", readErr.Error(), m.cfg.Path)
		return nil
	}

	m.store.Restore(records)
	nuts.L.Infof("[Persistence] Restored %d nodes from %s", len(records), m.cfg.Path)
	return nil
}

// MarkDirty schedules a save. If the throttle window has already passed
// since the last save, the saver wakes immediately; otherwise the pending
// change rides along with the next tick.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()

	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Start launches the save/retention loop.
func (m *Manager) Start() {
	go m.run()
}

// Stop cancels the loop and blocks until one final forced save completed.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.SaveWindow)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			if m.isDirty() {
				if err := m.SaveNow(); err != nil {
					nuts.L.Errorf("[Persistence] Final save failed: %v", err)
				}
			}
			return
		case <-m.kick:
			m.saveIfDue()
		case <-ticker.C:
			m.saveIfDue()
		}
	}
}

func (m *Manager) isDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *Manager) saveIfDue() {
	m.mu.Lock()
	due := m.dirty && time.Since(m.lastSave) >= m.cfg.SaveWindow
	m.mu.Unlock()
	if !due {
		return
	}
	if err := m.SaveNow(); err != nil {
		// State stays dirty; the next tick retries.
		nuts.L.Errorf("[Persistence] Save failed, will retry: %v", err)
	}
}

// SaveNow prunes the store, then atomically writes the resulting snapshot:
// temp file in the same directory, flush, rename over the existing file.
// Never in place, so a crash mid-write leaves the previous snapshot intact.
func (m *Manager) SaveNow() error {
	started := time.Now()
	now := float64(started.UnixNano()) / 1e9
	cutoff := now - m.retention.HistoryWindow.Seconds()

	pruned := m.store.ApplyRetention(cutoff, now)
	if pruned.PacketsRemoved > 0 || pruned.PositionsRemoved > 0 || pruned.GatewaysRemoved > 0 {
		nuts.L.Infof("[Persistence] Retention removed %d packets, %d positions, %d gateway observations",
			pruned.PacketsRemoved, pruned.PositionsRemoved, pruned.GatewaysRemoved)
		m.events.Emit("retention.pruned", pruned)
	}

	records := m.store.Export()

	data, err := json.Marshal(records)
	if err != nil {
		return errors.NewPersistenceWriteError("failed to marshal snapshot", err)
	}

	if err := m.writeAtomic(data); err != nil {
		return err
	}

	m.mu.Lock()
	m.dirty = false
	m.lastSave = time.Now()
	m.mu.Unlock()

	nuts.L.Infof("[Persistence] Saved %d nodes to %s in %s", len(records), m.cfg.Path, time.Since(started))
	m.events.Emit("snapshot.saved", len(records))
	return nil
}

func (m *Manager) writeAtomic(data []byte) error {
	dir := filepath.Dir(m.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewPersistenceWriteError("failed to create snapshot directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.cfg.Path)+".tmp-*")
	if err != nil {
		return errors.NewPersistenceWriteError("failed to create temp snapshot", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewPersistenceWriteError("failed to write temp snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewPersistenceWriteError("failed to flush temp snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistenceWriteError("failed to close temp snapshot", err)
	}

	if err := os.Rename(tmpName, m.cfg.Path); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistenceWriteError("failed to rename snapshot into place", err)
	}
	return nil
}
