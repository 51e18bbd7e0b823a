package so_sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SimConfig configures the simulator binary.
type SimConfig struct {
	// URDFFile is the robot description to load.
	URDFFile string `json:"urdf_file"`

	// Scene names the builtin scene loaded at startup (default "table").
	Scene string `json:"scene,omitempty"`

	// FPS is the frame-loop rate (default 30).
	FPS int `json:"fps,omitempty"`

	// FeedURL is the WebSocket address of the leader streamer,
	// e.g. "ws://localhost:8765". Empty disables the feed.
	FeedURL string `json:"feed_url,omitempty"`

	// HTTPAddr is the listen address for the capture API (default ":8090").
	HTTPAddr string `json:"http_addr,omitempty"`

	// CaptureDir is where captures and metadata are stored (default "captures").
	CaptureDir string `json:"capture_dir,omitempty"`

	Grasp      GraspConfig      `json:"grasp,omitempty"`
	Generation GenerationConfig `json:"generation,omitempty"`
}

// GenerationConfig points at the external image-generation API used to
// stylize captures.
type GenerationConfig struct {
	URL     string        `json:"url,omitempty"`
	APIKey  string        `json:"api_key,omitempty"`
	Style   string        `json:"style,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (cfg *SimConfig) Validate(path string) error {
	if cfg.URDFFile == "" {
		return fmt.Errorf("%s: must specify urdf_file", path)
	}
	if cfg.Scene == "" {
		cfg.Scene = "table"
	}
	if _, ok := FindSceneSpec(cfg.Scene); !ok {
		return fmt.Errorf("%s: unknown scene %q", path, cfg.Scene)
	}
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.FPS < 1 || cfg.FPS > 240 {
		return fmt.Errorf("%s: fps must be between 1 and 240, got %d", path, cfg.FPS)
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8090"
	}
	if cfg.CaptureDir == "" {
		cfg.CaptureDir = "captures"
	}
	if cfg.Grasp.GripDistance < 0 {
		return fmt.Errorf("%s: grip_distance must be positive, got %f", path, cfg.Grasp.GripDistance)
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 30 * time.Second
	}
	return nil
}

// LoadSimConfig reads and validates a JSON config file.
func LoadSimConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg SimConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}
