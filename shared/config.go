// Package shared provides configuration, error, and debug plumbing common
// to every controller component: device-bus/operator-bus handlers, the
// planner, the store adapters, and the admin surface.
package shared

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DEBUG_MODE controls debug logging verbosity across the server. Set via
// the DEBUG environment variable during InitConfig.
var DEBUG_MODE = false

const (
	// PublishTimeout bounds every outbound bus publish.
	PublishTimeout = 2 * time.Second

	// ArriveMarkerTTL is how long an ArriveMarker lingers.
	ArriveMarkerTTL = 180 * time.Second

	// DailyStatsTTL is how long a day's accumulated bucket survives.
	DailyStatsTTL = 30 * 24 * time.Hour

	// DefaultNodeCountGlitchThreshold is the default movement-delta cutoff
	// above which a position update is treated as a sensor glitch and
	// discarded. Overridable per map.
	DefaultNodeCountGlitchThreshold = 10

	// OperatorChannel is the core operator-bus channel.
	OperatorChannel = "smartfarm"

	// CompatRobotCommandChannel is the legacy operator channel name
	// accepted only when a map's CompatRobotCommand flag is set.
	CompatRobotCommandChannel = "robot:command"

	// RobotEventChannel carries REMOVE/ERROR notifications.
	RobotEventChannel = "smartfarm:robot"
)

// MapConfig holds the per-map settings that vary by deployment instead of
// being hard-coded: the charging node identity, the node-count glitch
// threshold, and the legacy-channel compatibility flag. The admission
// prefix is process-wide (Config.AdmissionPrefix).
type MapConfig struct {
	// Name is the map's opaque identifier, e.g. "smartfarm_x".
	Name string

	// ChargingNode is the designated home NodeRef, typically "1-0".
	// Status CHARGING/WAITING can only be entered here.
	ChargingNode string

	// NodeCountGlitchThreshold discards node-count deltas above this value.
	NodeCountGlitchThreshold int

	// CompatRobotCommand, when true, lets messages for this map arriving on
	// the legacy "robot:command" operator channel be handled; that channel
	// is always subscribed, and its messages for maps without the flag are
	// dropped.
	CompatRobotCommand bool
}

// Config is the process-wide configuration, loaded once in InitConfig.
type Config struct {
	// AdmissionPrefix is the required map_name prefix.
	AdmissionPrefix string

	// Maps holds the seeded per-map configuration, keyed by map name.
	Maps map[string]*MapConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MQTTBrokerURL string
	MQTTClientID  string

	HTTPPort string
}

// AppConfig is the single package-level configuration instance, populated
// by InitConfig and read by every component thereafter. Uses a
// package-level mutable settings value rather than threading a *Config
// through every constructor by hand -- components
// still accept it explicitly where it affects testable behavior (the
// robotstate mutators take a *MapConfig directly); AppConfig is read by
// main.go's composition root, the admin surface, and the bus handlers'
// map lookups.
var AppConfig = &Config{
	Maps: make(map[string]*MapConfig),
}

// InitConfig loads configuration from environment variables. Call once
// during startup, before any other component is constructed.
func InitConfig() {
	DEBUG_MODE = os.Getenv("DEBUG") == "true"

	AppConfig.AdmissionPrefix = firstNonEmpty(os.Getenv("SMARTFARM_MAP_PREFIX"), "smartfarm_")
	AppConfig.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379")
	AppConfig.RedisPassword = os.Getenv("REDIS_PASSWORD")
	AppConfig.RedisDB = atoiDefault(os.Getenv("REDIS_DB"), 0)
	AppConfig.MQTTBrokerURL = firstNonEmpty(os.Getenv("MQTT_BROKER_URL"), "tcp://localhost:1883")
	AppConfig.MQTTClientID = firstNonEmpty(os.Getenv("MQTT_CLIENT_ID"), "smartfarm-controller")
	AppConfig.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), "8080")

	loadMapConfigsFromEnv()
}

// RegisterMap adds or replaces a map's configuration. Exposed so tests and
// grid-authoring callers can seed maps without going through environment
// variables.
func RegisterMap(cfg *MapConfig) {
	if cfg.NodeCountGlitchThreshold <= 0 {
		cfg.NodeCountGlitchThreshold = DefaultNodeCountGlitchThreshold
	}
	if cfg.ChargingNode == "" {
		cfg.ChargingNode = "1-0"
	}
	AppConfig.Maps[cfg.Name] = cfg
}

// GetMapConfig looks up a map's configuration, returning ok=false if the
// map was never registered.
func GetMapConfig(mapName string) (*MapConfig, bool) {
	cfg, ok := AppConfig.Maps[mapName]
	return cfg, ok
}

// loadMapConfigsFromEnv seeds map configs from SMARTFARM_MAPS, a
// comma-separated list of map names, each optionally paired with a
// charging-node override via SMARTFARM_MAP_<NAME>_CHARGING_NODE. The node
// graph itself is authored elsewhere; this only seeds the per-map config
// entries that core components dereference.
func loadMapConfigsFromEnv() {
	raw := os.Getenv("SMARTFARM_MAPS")
	if raw == "" {
		return
	}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		envKey := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		chargingNode := firstNonEmpty(os.Getenv("SMARTFARM_MAP_"+envKey+"_CHARGING_NODE"), "1-0")
		threshold := atoiDefault(os.Getenv("SMARTFARM_MAP_"+envKey+"_GLITCH_THRESHOLD"), DefaultNodeCountGlitchThreshold)
		compat := os.Getenv("SMARTFARM_MAP_"+envKey+"_COMPAT_ROBOT_COMMAND") == "true"
		RegisterMap(&MapConfig{
			Name:                     name,
			ChargingNode:             chargingNode,
			NodeCountGlitchThreshold: threshold,
			CompatRobotCommand:       compat,
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
