// FilePath: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	MQTT         MQTTConfig          `mapstructure:"mqtt"`
	Persistence  PersistenceConfig   `mapstructure:"persistence"`
	Retention    RetentionConfig     `mapstructure:"retention"`
	Scoring      ScoringConfig       `mapstructure:"scoring"`
	Geofence     GeofenceConfig      `mapstructure:"geofence"`
	Archive      ArchiveConfig       `mapstructure:"archive"`
	Monitoring   MonitoringConfig    `mapstructure:"monitoring"`
	SpecialNodes []SpecialNodeConfig `mapstructure:"special_nodes"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MQTTConfig struct {
	BrokerURL string   `mapstructure:"broker_url"`
	ClientID  string   `mapstructure:"client_id"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Topics    []string `mapstructure:"topics"`
	QoS       int      `mapstructure:"qos"`
}

type PersistenceConfig struct {
	Path string `mapstructure:"path"`
	// SaveWindow is the coalescing throttle: at most one snapshot write
	// per window, with a forced write on shutdown.
	SaveWindow time.Duration `mapstructure:"save_window"`
}

type RetentionConfig struct {
	// HistoryWindow bounds ordinary packet and position history.
	HistoryWindow time.Duration `mapstructure:"history_window"`
	// SpecialPacketCap is the FIFO cap on packet history of special nodes.
	SpecialPacketCap int `mapstructure:"special_packet_cap"`
	// PositionHistoryCap is the ring capacity of per-node position history.
	PositionHistoryCap int `mapstructure:"position_history_cap"`
}

// ScoringConfig holds the gateway reliability policy constants. The weights
// and the RSSI floor were tuned empirically against live mesh traffic; they
// are parameters, not invariants.
type ScoringConfig struct {
	DirectHitWeight  int     `mapstructure:"direct_hit_weight"`
	PartialHitWeight int     `mapstructure:"partial_hit_weight"`
	StrongRSSIFloor  float64 `mapstructure:"strong_rssi_floor"`

	Tier1MinScore int           `mapstructure:"tier1_min_score"`
	Tier2MinScore int           `mapstructure:"tier2_min_score"`
	Tier1Window   time.Duration `mapstructure:"tier1_window"`
	Tier2Window   time.Duration `mapstructure:"tier2_window"`
	Tier3Window   time.Duration `mapstructure:"tier3_window"`
}

type GeofenceConfig struct {
	ThresholdMeters float64       `mapstructure:"threshold_meters"`
	AlertCooldown   time.Duration `mapstructure:"alert_cooldown"`
}

// ArchiveConfig enables the optional Postgres packet archive. An empty DSN
// disables it; the JSON snapshot remains the only state the core owns.
type ArchiveConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// SpecialNodeConfig designates a node whose movement is watched against a
// configured home position.
type SpecialNodeConfig struct {
	NodeID    string  `mapstructure:"node_id" json:"node_id"`
	Name      string  `mapstructure:"name" json:"name"`
	OriginLat float64 `mapstructure:"origin_lat" json:"origin_lat"`
	OriginLon float64 `mapstructure:"origin_lon" json:"origin_lon"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("MESHWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// MQTT defaults
	viper.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "meshwatch-hub")
	viper.SetDefault("mqtt.topics", []string{"mesh/#"})
	viper.SetDefault("mqtt.qos", 1)

	// Persistence defaults
	viper.SetDefault("persistence.path", "./data/nodes.json")
	viper.SetDefault("persistence.save_window", "30s")

	// Retention defaults
	viper.SetDefault("retention.history_window", "168h") // 7 days
	viper.SetDefault("retention.special_packet_cap", 50)
	viper.SetDefault("retention.position_history_cap", 10000)

	// Scoring defaults
	viper.SetDefault("scoring.direct_hit_weight", 15)
	viper.SetDefault("scoring.partial_hit_weight", 5)
	viper.SetDefault("scoring.strong_rssi_floor", -110.0)
	viper.SetDefault("scoring.tier1_min_score", 70)
	viper.SetDefault("scoring.tier2_min_score", 50)
	viper.SetDefault("scoring.tier1_window", "168h") // 7 days
	viper.SetDefault("scoring.tier2_window", "72h")  // 3 days
	viper.SetDefault("scoring.tier3_window", "24h")  // 1 day

	// Geofence defaults
	viper.SetDefault("geofence.threshold_meters", 50.0)
	viper.SetDefault("geofence.alert_cooldown", "1h")

	// Monitoring defaults
	viper.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt broker_url is required")
	}
	if config.Persistence.Path == "" {
		return fmt.Errorf("persistence path is required")
	}
	if config.Persistence.SaveWindow < 5*time.Second || config.Persistence.SaveWindow > 60*time.Second {
		return fmt.Errorf("persistence save_window must be between 5s and 60s")
	}
	if config.Geofence.ThresholdMeters <= 0 {
		return fmt.Errorf("geofence threshold_meters must be positive")
	}
	for _, sn := range config.SpecialNodes {
		if sn.NodeID == "" {
			return fmt.Errorf("special node entries require a node_id")
		}
	}
	return nil
}
