package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/waypoint/internal/planning"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
	Layout   LayoutConfig   `toml:"layout"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// LayoutConfig tunes the roadmap layout. Zero values fall back to engine defaults.
type LayoutConfig struct {
	PaddingRatio   float64 `toml:"padding_ratio"`
	GapRatio       float64 `toml:"gap_ratio"`
	MinWindowHours float64 `toml:"min_window_hours"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".waypoint/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Layout: LayoutConfig{
			PaddingRatio:   planning.DefaultPaddingRatio,
			GapRatio:       planning.DefaultGapRatio,
			MinWindowHours: planning.DefaultMinWindow.Hours(),
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if _, err := log.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	api := strings.Trim(strings.TrimSpace(c.Server.APIEndpoint), "/")
	mcp := strings.Trim(strings.TrimSpace(c.Server.MCPEndpoint), "/")
	if api != "" && api == mcp {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", c.Server.APIEndpoint)
	}

	if c.Layout.PaddingRatio < 0 || c.Layout.PaddingRatio >= 0.5 {
		return fmt.Errorf("layout.padding_ratio must be in [0, 0.5): %v", c.Layout.PaddingRatio)
	}
	if c.Layout.GapRatio < 0 || c.Layout.GapRatio >= 1 {
		return fmt.Errorf("layout.gap_ratio must be in [0, 1): %v", c.Layout.GapRatio)
	}
	if c.Layout.MinWindowHours < 0 {
		return fmt.Errorf("layout.min_window_hours must be >= 0: %v", c.Layout.MinWindowHours)
	}

	return nil
}

// LayoutOptions converts the layout section into engine options.
func (c Config) LayoutOptions() planning.LayoutOptions {
	return planning.LayoutOptions{
		PaddingRatio: c.Layout.PaddingRatio,
		GapRatio:     c.Layout.GapRatio,
		MinWindow:    time.Duration(c.Layout.MinWindowHours * float64(time.Hour)),
	}
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
