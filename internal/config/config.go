package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "~/.config/photomap/config.json"
	envConfigPath     = "PHOTOMAP_CONFIG"
)

// Config holds user-editable settings.
type Config struct {
	Server  Server  `json:"server" yaml:"server"`
	Logging Logging `json:"logging" yaml:"logging"`
	Paths   Paths   `json:"paths" yaml:"paths"`
	Import  Import  `json:"import" yaml:"import"`
	Map     Map     `json:"map" yaml:"map"`
	Watch   Watch   `json:"watch" yaml:"watch"`
}

// Server configures the listeners.
type Server struct {
	Addr     string `json:"addr" yaml:"addr"`
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"` // empty disables gRPC
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `json:"format" yaml:"format"`           // text, json
	FileOutput bool   `json:"file_output" yaml:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir" yaml:"log_dir"`
}

// Paths configures on-disk locations.
type Paths struct {
	UploadDir    string `json:"upload_dir" yaml:"upload_dir"`
	ThumbnailDir string `json:"thumbnail_dir" yaml:"thumbnail_dir"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
	ExportDir    string `json:"export_dir" yaml:"export_dir"`
}

// Import tunes metadata extraction and thumbnailing.
type Import struct {
	ThumbnailSize    uint `json:"thumbnail_size" yaml:"thumbnail_size"` // longest edge in px
	ThumbnailQuality uint `json:"thumbnail_quality" yaml:"thumbnail_quality"`
	Thumbnails       bool `json:"thumbnails" yaml:"thumbnails"`
	UseExiftool      bool `json:"use_exiftool" yaml:"use_exiftool"`
	MaxUploadMB      int  `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// Map holds viewport and gesture tuning.
type Map struct {
	CenterLat          float64 `json:"center_lat" yaml:"center_lat"`
	CenterLng          float64 `json:"center_lng" yaml:"center_lng"`
	Zoom               float64 `json:"zoom" yaml:"zoom"`
	FocusZoom          float64 `json:"focus_zoom" yaml:"focus_zoom"`
	FitPadding         float64 `json:"fit_padding" yaml:"fit_padding"`                   // fraction of the box per side
	MinFitDistance     float64 `json:"min_fit_distance" yaml:"min_fit_distance"`         // meters
	MinZoomBoxDistance float64 `json:"min_zoom_box_distance" yaml:"min_zoom_box_distance"` // meters
	TrackpadZoomStep   float64 `json:"trackpad_zoom_step" yaml:"trackpad_zoom_step"`
	TileURL            string  `json:"tile_url" yaml:"tile_url"`
	TileAttribution    string  `json:"tile_attribution" yaml:"tile_attribution"`
	MaxZoom            int     `json:"max_zoom" yaml:"max_zoom"`
}

// Watch configures automatic re-import of a folder.
type Watch struct {
	Dir        string `json:"dir" yaml:"dir"` // empty disables the watcher
	DebounceMS int    `json:"debounce_ms" yaml:"debounce_ms"`
}

// Path returns the config file location in effect.
func Path() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads configuration from disk, falling back to sensible defaults.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func Load() (*Config, error) {
	cfg := Default()

	expanded, err := expandUser(Path())
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the map and importer cannot work with.
func (c *Config) Validate() error {
	if c.Map.FitPadding < 0 {
		return fmt.Errorf("map.fit_padding must not be negative")
	}
	if c.Map.FocusZoom <= 0 || c.Map.Zoom <= 0 {
		return fmt.Errorf("map zoom levels must be positive")
	}
	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 || c.Map.CenterLng < -180 || c.Map.CenterLng > 180 {
		return fmt.Errorf("map center out of range")
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	data := filepath.Join(os.TempDir(), "photomap")
	return &Config{
		Server: Server{
			Addr: ":8080",
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			UploadDir:    filepath.Join(data, "uploads"),
			ThumbnailDir: filepath.Join(data, "thumbs"),
			DatabasePath: filepath.Join(data, "photomap.db"),
			ExportDir:    ".",
		},
		Import: Import{
			ThumbnailSize:    320,
			ThumbnailQuality: 80,
			Thumbnails:       true,
			UseExiftool:      true,
			MaxUploadMB:      2048,
		},
		Map: Map{
			CenterLat:          39.875272,
			CenterLng:          116.3914417,
			Zoom:               13,
			FocusZoom:          18,
			FitPadding:         0.1,
			MinFitDistance:     100,
			MinZoomBoxDistance: 100,
			TrackpadZoomStep:   0.3,
			TileURL:            "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			TileAttribution:    `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
			MaxZoom:            19,
		},
		Watch: Watch{
			DebounceMS: 2000,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
