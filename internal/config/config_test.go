package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if cfg.Port != 8091 {
		t.Errorf("default port = %d", cfg.Port)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.FPS != 25 {
		t.Errorf("default camera settings = %+v", cfg.Camera)
	}
	if cfg.Camera.MaxDevices != 10 {
		t.Errorf("default max devices = %d", cfg.Camera.MaxDevices)
	}
	if cfg.PreferredCameraID != -1 {
		t.Errorf("PreferredCameraID = %d, want -1 (unset)", cfg.PreferredCameraID)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("monitor enabled by default: %q", cfg.MQTT.Broker)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
port = 9000
hospital = "St Mary"

[camera]
preferredDevice = 2
width = 1280
height = 720

[mqtt]
broker = "10.0.0.5"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)
	if cfg.Port != 9000 || cfg.Hospital != "St Mary" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Camera.PreferredDevice != 2 || cfg.Camera.Width != 1280 {
		t.Errorf("camera section not applied: %+v", cfg.Camera)
	}
	if cfg.Camera.FPS != 25 {
		t.Errorf("unset fps lost its default: %d", cfg.Camera.FPS)
	}
	if cfg.MQTT.Broker != "10.0.0.5" || cfg.MQTT.Port != 1883 {
		t.Errorf("mqtt section = %+v", cfg.MQTT)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PREFERRED_CAMERA_ID", "3")
	t.Setenv("DISABLE_CAMERA", "true")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	applyEnvOverrides(&cfg)

	if cfg.PreferredCameraID != 3 {
		t.Errorf("PREFERRED_CAMERA_ID not applied: %d", cfg.PreferredCameraID)
	}
	if !cfg.DisableCamera {
		t.Error("DISABLE_CAMERA not applied")
	}
}

func TestApplyEnvOverridesInvalidID(t *testing.T) {
	t.Setenv("PREFERRED_CAMERA_ID", "not-a-number")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	applyEnvOverrides(&cfg)

	if cfg.PreferredCameraID != -1 {
		t.Errorf("invalid PREFERRED_CAMERA_ID was applied: %d", cfg.PreferredCameraID)
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !isTruthy(v) {
			t.Errorf("isTruthy(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		if isTruthy(v) {
			t.Errorf("isTruthy(%q) = true", v)
		}
	}
}

func TestUpdatePreferredCamera(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[camera]\npreferredDevice = 0\nwidth = 640\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)
	if err := cfg.UpdatePreferredCamera(4); err != nil {
		t.Fatal(err)
	}
	if cfg.Camera.PreferredDevice != 4 {
		t.Errorf("in-memory value not updated: %d", cfg.Camera.PreferredDevice)
	}

	reloaded := LoadConfig(path)
	if reloaded.Camera.PreferredDevice != 4 {
		t.Errorf("persisted value = %d, want 4", reloaded.Camera.PreferredDevice)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "width = 640") {
		t.Error("unrelated config lines were lost")
	}
}

func TestExtractDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := ExtractDefaultConfig(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	// A second extraction must not clobber an existing file
	if err := os.WriteFile(path, []byte("port = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ExtractDefaultConfig(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "port = 1\n" {
		t.Error("existing config file was overwritten")
	}
}
