package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapview.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. MAPVIEW_MAP_DEFAULTZOOM.
const EnvPrefix = "MAPVIEW"

// Config is the complete application configuration.
type Config struct {
	LogLevel string        `json:"logLevel" mapstructure:"logLevel" validate:"oneof=debug info warn error"`
	LogsDir  string        `json:"logsDir" mapstructure:"logsDir"`
	Graylog  GraylogConfig `json:"graylog" mapstructure:"graylog"`
	Map      MapConfig     `json:"map" mapstructure:"map"`
	Marker   MarkerConfig  `json:"marker" mapstructure:"marker"`
	Events   EventsConfig  `json:"events" mapstructure:"events"`
	Host     HostConfig    `json:"host" mapstructure:"host"`
	GPS      GPSConfig     `json:"gps" mapstructure:"gps"`
}

// GraylogConfig holds the optional GELF sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address" validate:"required_if=Enabled true"`
}

// MapConfig holds the camera defaults and surface settings
type MapConfig struct {
	DefaultZoom   float64       `json:"defaultZoom" mapstructure:"defaultZoom" validate:"gtefield=MinZoom,ltefield=MaxZoom"`
	DefaultCenter []float64     `json:"defaultCenter" mapstructure:"defaultCenter" validate:"len=2"`
	MinZoom       float64       `json:"minZoom" mapstructure:"minZoom" validate:"gte=0"`
	MaxZoom       float64       `json:"maxZoom" mapstructure:"maxZoom" validate:"gtefield=MinZoom"`
	Projection    string        `json:"projection" mapstructure:"projection" validate:"oneof=EPSG:3857 EPSG:4326"`
	ZoomDuration  time.Duration `json:"zoomDuration" mapstructure:"zoomDuration" validate:"gt=0"`
	TileURL       string        `json:"tileUrl" mapstructure:"tileUrl" validate:"required"`
}

// MarkerConfig selects the marker variant
type MarkerConfig struct {
	Style                     string `json:"style" mapstructure:"style" validate:"oneof=circle icon"`
	Icon                      string `json:"icon" mapstructure:"icon" validate:"required_if=Style icon"`
	VisibilityFollowsTracking bool   `json:"visibilityFollowsTracking" mapstructure:"visibilityFollowsTracking"`
	RotateWithHeading         bool   `json:"rotateWithHeading" mapstructure:"rotateWithHeading"`
	ShowAccuracy              bool   `json:"showAccuracy" mapstructure:"showAccuracy"`
}

// EventsConfig toggles optional host notifications
type EventsConfig struct {
	EmitMoveStart     bool `json:"emitMoveStart" mapstructure:"emitMoveStart"`
	ViewQueueSize     int  `json:"viewQueueSize" mapstructure:"viewQueueSize" validate:"gt=0"`
	ViewQueueBlocking bool `json:"viewQueueBlocking" mapstructure:"viewQueueBlocking"`
}

// HostConfig holds the host shell settings
type HostConfig struct {
	FollowPosition bool   `json:"followPosition" mapstructure:"followPosition"`
	Listen         string `json:"listen" mapstructure:"listen" validate:"required"`
	Width          int    `json:"width" mapstructure:"width" validate:"gt=0"`
	Height         int    `json:"height" mapstructure:"height" validate:"gt=0"`
	StatusFile     string `json:"statusFile" mapstructure:"statusFile"` // below LogsDir; empty disables
}

// GPSConfig selects and configures the location provider
type GPSConfig struct {
	Source   string    `json:"source" mapstructure:"source" validate:"oneof=sim gpsd"`
	GpsdAddr string    `json:"gpsdAddr" mapstructure:"gpsdAddr" validate:"required_if=Source gpsd"`
	Sim      SimConfig `json:"sim" mapstructure:"sim"`
}

// SimConfig describes the simulated circular track
type SimConfig struct {
	CenterLon float64       `json:"centerLon" mapstructure:"centerLon" validate:"gte=-180,lte=180"`
	CenterLat float64       `json:"centerLat" mapstructure:"centerLat" validate:"gte=-85,lte=85"`
	RadiusM   float64       `json:"radiusM" mapstructure:"radiusM" validate:"gt=0"`
	Period    time.Duration `json:"period" mapstructure:"period" validate:"gt=0"`
	Interval  time.Duration `json:"interval" mapstructure:"interval" validate:"gt=0"`
}

// DefaultTileURL is the OpenStreetMap tile template.
const DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("map.defaultZoom", 7)
	viper.SetDefault("map.defaultCenter", []float64{0, 0})
	viper.SetDefault("map.minZoom", 0)
	viper.SetDefault("map.maxZoom", 28)
	viper.SetDefault("map.projection", "EPSG:3857")
	viper.SetDefault("map.zoomDuration", "500ms")
	viper.SetDefault("map.tileUrl", DefaultTileURL)

	viper.SetDefault("marker.style", "circle")
	viper.SetDefault("marker.icon", "")
	viper.SetDefault("marker.visibilityFollowsTracking", true)
	viper.SetDefault("marker.rotateWithHeading", false)
	viper.SetDefault("marker.showAccuracy", true)

	viper.SetDefault("events.emitMoveStart", true)
	viper.SetDefault("events.viewQueueSize", 64)
	viper.SetDefault("events.viewQueueBlocking", false)

	viper.SetDefault("host.followPosition", true)
	viper.SetDefault("host.listen", ":8080")
	viper.SetDefault("host.width", 800)
	viper.SetDefault("host.height", 600)
	viper.SetDefault("host.statusFile", "status.json")

	viper.SetDefault("gps.source", "sim")
	viper.SetDefault("gps.gpsdAddr", "127.0.0.1:2947")
	viper.SetDefault("gps.sim.centerLon", 13.405)
	viper.SetDefault("gps.sim.centerLat", 52.52)
	viper.SetDefault("gps.sim.radiusM", 200)
	viper.SetDefault("gps.sim.period", "2m")
	viper.SetDefault("gps.sim.interval", "1s")
}

// Load sets default values, applies MAPVIEW_ environment overrides and reads
// the JSON config file from configDir. A missing file is not an error.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Get decodes and validates the loaded configuration.
func Get() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
