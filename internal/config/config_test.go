package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Sampler.FrameStride != 5 {
		t.Errorf("frame stride = %d, want 5", cfg.Sampler.FrameStride)
	}
	if cfg.Sampler.ResizeWidth != 480 {
		t.Errorf("resize width = %d, want 480", cfg.Sampler.ResizeWidth)
	}
	if cfg.Cadence.ObjectsEvery != 10 || cfg.Cadence.MultiFaceEvery != 4 {
		t.Errorf("cadence = %+v, want 10/4", cfg.Cadence)
	}
	if !cfg.Detection.Face.Enabled || !cfg.Detection.Objects.Enabled {
		t.Error("detectors should default to enabled")
	}
	if cfg.Detection.Objects.Threshold != 0.5 {
		t.Errorf("object threshold = %v, want 0.5", cfg.Detection.Objects.Threshold)
	}
	if cfg.Scoring.VideoWeight != 0.7 {
		t.Errorf("video weight = %v, want 0.7", cfg.Scoring.VideoWeight)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
logs_dir: /tmp/sessions
sampler:
  frame_stride: 2
detection:
  objects:
    enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogsDir != "/tmp/sessions" {
		t.Errorf("logs dir = %q", cfg.LogsDir)
	}
	if cfg.Sampler.FrameStride != 2 {
		t.Errorf("frame stride = %d, want 2", cfg.Sampler.FrameStride)
	}
	if cfg.Detection.Objects.Enabled {
		t.Error("objects should be disabled by the file")
	}
	// untouched keys keep defaults
	if cfg.Sampler.ResizeWidth != 480 {
		t.Errorf("resize width = %d, want default 480", cfg.Sampler.ResizeWidth)
	}
}

// isolateConfigDiscovery keeps the test away from any real config.yaml or
// ~/.examwarden the machine might have.
func isolateConfigDiscovery(t *testing.T) {
	t.Helper()
	// t.Chdir needs Go 1.24; do the equivalent by hand for older toolchains.
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatal(err)
		}
	})
	t.Setenv("HOME", t.TempDir())
}

func TestLoadExplicitMissingPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load should fail when a named config file does not exist")
	}
}

func TestLoadNoConfigFileUsesDefaults(t *testing.T) {
	isolateConfigDiscovery(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sampler.FrameStride != 5 {
		t.Errorf("frame stride = %d, want default 5", cfg.Sampler.FrameStride)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateConfigDiscovery(t)
	t.Setenv("EXAMWARDEN_LOGS_DIR", "/data/warden")
	t.Setenv("EXAMWARDEN_FACE_URL", "http://detector:8000")
	t.Setenv("EXAMWARDEN_FRAME_STRIDE", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogsDir != "/data/warden" {
		t.Errorf("logs dir = %q", cfg.LogsDir)
	}
	if cfg.Detection.Face.URL != "http://detector:8000" {
		t.Errorf("face url = %q", cfg.Detection.Face.URL)
	}
	if cfg.Sampler.FrameStride != 3 {
		t.Errorf("frame stride = %d, want 3", cfg.Sampler.FrameStride)
	}
}

func TestInvalidStrideEnvIgnored(t *testing.T) {
	isolateConfigDiscovery(t)
	t.Setenv("EXAMWARDEN_FRAME_STRIDE", "zero")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sampler.FrameStride != 5 {
		t.Errorf("frame stride = %d, want default 5", cfg.Sampler.FrameStride)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := defaultConfig()
	cfg.LogsDir = "elsewhere"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LogsDir != "elsewhere" {
		t.Errorf("logs dir = %q, want elsewhere", loaded.LogsDir)
	}
}

func TestContextRoundTrip(t *testing.T) {
	cfg := defaultConfig()
	cfg.LogsDir = "marker"

	ctx := WithConfig(context.Background(), cfg)
	if got := FromContext(ctx); got.LogsDir != "marker" {
		t.Errorf("FromContext returned %q", got.LogsDir)
	}

	// absent config falls back to defaults
	if got := FromContext(context.Background()); got.Sampler.FrameStride != 5 {
		t.Errorf("fallback config stride = %d", got.Sampler.FrameStride)
	}
}
