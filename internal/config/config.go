package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keagan/examwarden/pkg/util"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Where session records and evidence images are written
	LogsDir string `yaml:"logs_dir"`

	Sampler SamplerConfig `yaml:"sampler"`
	Cadence CadenceConfig `yaml:"cadence"`

	// Per-detector settings
	Detection DetectionConfig `yaml:"detection"`

	AudioMonitoring AudioConfig `yaml:"audio_monitoring"`

	Scoring ScoringConfig `yaml:"scoring"`

	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

// SamplerConfig controls frame decimation and downscaling
type SamplerConfig struct {
	FrameStride int `yaml:"frame_stride"`
	ResizeWidth int `yaml:"resize_width"`
}

// CadenceConfig controls how often the expensive detectors run, counted in
// processed (post-decimation) frames.
type CadenceConfig struct {
	ObjectsEvery   int `yaml:"objects_every"`
	MultiFaceEvery int `yaml:"multi_face_every"`
}

type DetectionConfig struct {
	Face      DetectorConfig `yaml:"face"`
	Eyes      DetectorConfig `yaml:"eyes"`
	Mouth     DetectorConfig `yaml:"mouth"`
	MultiFace DetectorConfig `yaml:"multi_face"`
	Objects   ObjectsConfig  `yaml:"objects"`
}

// DetectorConfig enables a detector and points it at its backing service
type DetectorConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ObjectsConfig additionally supports a local ONNX model as an alternative
// to a remote service.
type ObjectsConfig struct {
	Enabled   bool     `yaml:"enabled"`
	URL       string   `yaml:"url"`
	ModelPath string   `yaml:"model_path"`
	Labels    []string `yaml:"labels"`
	Threshold float64  `yaml:"threshold"`
}

type AudioConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ScoringConfig parameterizes the default scoring policy
type ScoringConfig struct {
	MediumPenalty float64 `yaml:"medium_penalty"`
	HighPenalty   float64 `yaml:"high_penalty"`
	VideoWeight   float64 `yaml:"video_weight"`
}

type FFmpegConfig struct {
	Threads int `yaml:"threads"`
}

// Load reads configuration from file or returns defaults. An explicitly
// given path must exist; only the discovery fallback may come up empty.
// A .env file (if present) and environment variables override service
// endpoints and paths.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	}

	// .env is optional; system environment still applies without it
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		LogsDir: "logs/sessions",
		Sampler: SamplerConfig{
			FrameStride: 5,
			ResizeWidth: 480,
		},
		Cadence: CadenceConfig{
			ObjectsEvery:   10,
			MultiFaceEvery: 4,
		},
		Detection: DetectionConfig{
			Face:      DetectorConfig{Enabled: true},
			Eyes:      DetectorConfig{Enabled: true},
			Mouth:     DetectorConfig{Enabled: true},
			MultiFace: DetectorConfig{Enabled: true},
			Objects: ObjectsConfig{
				Enabled:   true,
				Threshold: 0.5,
			},
		},
		AudioMonitoring: AudioConfig{Enabled: true},
		Scoring: ScoringConfig{
			MediumPenalty: 0.05,
			HighPenalty:   0.15,
			VideoWeight:   0.7,
		},
		FFmpeg: FFmpegConfig{Threads: 0},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EXAMWARDEN_LOGS_DIR"); v != "" {
		c.LogsDir = v
	}
	if v := os.Getenv("EXAMWARDEN_FACE_URL"); v != "" {
		c.Detection.Face.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_EYES_URL"); v != "" {
		c.Detection.Eyes.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_MOUTH_URL"); v != "" {
		c.Detection.Mouth.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_MULTI_FACE_URL"); v != "" {
		c.Detection.MultiFace.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_OBJECTS_URL"); v != "" {
		c.Detection.Objects.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_OBJECT_MODEL"); v != "" {
		c.Detection.Objects.ModelPath = v
	}
	if v := os.Getenv("EXAMWARDEN_AUDIO_URL"); v != "" {
		c.AudioMonitoring.URL = v
	}
	if v := os.Getenv("EXAMWARDEN_FRAME_STRIDE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sampler.FrameStride = n
		}
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".examwarden", "config.yaml"),
	}

	for _, path := range candidates {
		if util.FileExists(path) {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
