// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/itsatony/meshwatch/api"
	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/database"
	"github.com/itsatony/meshwatch/internal/gateway"
	"github.com/itsatony/meshwatch/internal/geofence"
	"github.com/itsatony/meshwatch/internal/meshservice"
	"github.com/itsatony/meshwatch/internal/monitoring"
	"github.com/itsatony/meshwatch/internal/persistence"
	"github.com/itsatony/meshwatch/internal/repository"
	"github.com/itsatony/meshwatch/internal/repository/postgres"
	"github.com/itsatony/meshwatch/internal/store"
	"github.com/itsatony/meshwatch/internal/transport"
	nuts "github.com/vaudience/go-nuts"
)

// Server wires the ingestion core to its transport, persistence and the
// read-only HTTP surface.
type Server struct {
	config      *config.Config
	meshservice *meshservice.MeshService
	persistence *persistence.Manager
	consumer    *transport.Consumer
	monitoring  *monitoring.Service
	srv         *http.Server
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{config: cfg}
}

// Start initializes all components, begins consuming the packet stream and
// blocks until shutdown completes.
func (s *Server) Start() error {
	events := nuts.NewEventEmitter()
	s.monitoring = monitoring.NewService()

	scorer := gateway.NewScorer(s.config.Scoring)
	detector := geofence.NewDetector(s.config.Geofence)
	st := store.New(s.config.Retention, scorer, detector, s.config.SpecialNodes)

	s.persistence = persistence.NewManager(st, s.config.Persistence, s.config.Retention, events)
	if err := s.persistence.Load(); err != nil {
		return fmt.Errorf("error loading snapshot: %w", err)
	}

	archive, err := initArchive(s.config.Archive)
	if err != nil {
		return fmt.Errorf("error initializing packet archive: %w", err)
	}

	s.meshservice = meshservice.New(st, s.persistence, archive, events)

	s.setupEventHandlers(events)
	s.persistence.Start()

	s.consumer = transport.NewConsumer(s.config.MQTT, s.meshservice)
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("error starting transport consumer: %w", err)
	}

	if s.config.Server.Enabled {
		s.startHTTP()
	}

	return s.waitForShutdown(archive)
}

func (s *Server) startHTTP() {
	router := api.NewRouter(s.meshservice)

	handler := handlers.RecoveryHandler()(
		handlers.CORS(handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}))(router))

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		nuts.L.Infof("[Server] Starting API server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting API server: %v", err)
			os.Exit(1)
		}
	}()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down:
// transport first so no new packets arrive, then the saver with its forced
// final snapshot, then the API server and the archive.
func (s *Server) waitForShutdown(archive repository.PacketArchive) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down...")

	s.consumer.Stop()
	s.persistence.Stop()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down API server: %w", err)
		}
	}

	if archive != nil {
		if err := archive.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing archive: %v", err)
		}
	}

	nuts.L.Infof("[Server] Shut down successfully")
	return nil
}

// setupEventHandlers forwards core events to monitoring. The alerting
// collaborator subscribes to the same emitter.
func (s *Server) setupEventHandlers(events *nuts.EventEmitter) {
	events.On("node.moved", "monitoring_handler", func(args ...interface{}) {
		if len(args) == 0 {
			return
		}
		if alert, ok := args[0].(*geofence.AlertEvent); ok {
			s.monitoring.RecordEvent("node_moved", map[string]string{
				"node_id": alert.NodeID,
			})
		}
	})

	events.On("node.returned", "monitoring_handler", func(args ...interface{}) {
		if len(args) > 0 {
			if id, ok := args[0].(string); ok {
				s.monitoring.RecordEvent("node_returned", map[string]string{
					"node_id": id,
				})
			}
		}
	})

	events.On("snapshot.saved", "monitoring_handler", func(args ...interface{}) {
		s.monitoring.RecordEvent("snapshot_saved", nil)
	})
}

func initArchive(cfg config.ArchiveConfig) (repository.PacketArchive, error) {
	if cfg.DSN == "" {
		nuts.L.Infof("[Server] Packet archive disabled (no DSN configured)")
		return nil, nil
	}
	db, err := database.NewPostgresDB(cfg.DSN)
	if err != nil {
		return nil, err
	}
	repo, err := postgres.NewPacketArchiveRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
