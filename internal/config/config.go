package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/reemio/endoapp/internal/logging"
)

// CameraDefaults holds the persisted camera preferences. PreferredDevice is
// the device index opened at startup when discovery finds it (or when
// discovery is skipped).
type CameraDefaults struct {
	PreferredDevice int `toml:"preferredDevice"`
	Width           int `toml:"width"`  // requested frame width in pixels
	Height          int `toml:"height"` // requested frame height in pixels
	FPS             int `toml:"fps"`    // requested frames per second
	MaxDevices      int `toml:"maxDevices"`
}

// MQTTConfig configures the optional procedure monitor. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker string `toml:"broker"`
	Port   int    `toml:"port"`
}

type Config struct {
	Port     int            `toml:"port"`
	DataDir  string         `toml:"dataDir"`
	Hospital string         `toml:"hospital"`
	Camera   CameraDefaults `toml:"camera"`
	MQTT     MQTTConfig     `toml:"mqtt"`

	// Runtime-only fields, not persisted.
	Verbose           bool   `toml:"-"`
	DisableCamera     bool   `toml:"-"`
	PreferredCameraID int    `toml:"-"` // from PREFERRED_CAMERA_ID; -1 when unset
	ConfigPath        string `toml:"-"`
}

// LoadConfig reads the given config file over built-in defaults. A missing
// file is not an error; defaults are returned.
func LoadConfig(path string) Config {
	config := Config{
		Port:     8091,
		DataDir:  "data",
		Hospital: "General Hospital",
		Camera: CameraDefaults{
			PreferredDevice: 0,
			Width:           640,
			Height:          480,
			FPS:             25,
			MaxDevices:      10,
		},
		MQTT: MQTTConfig{Port: 1883},
	}
	config.PreferredCameraID = -1

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			logging.ErrorLogger.Printf("Error reading %s: %v", path, err)
		}
	} else {
		logging.WarningLogger.Printf("%s not found, using default configuration", path)
	}

	config.ConfigPath = path
	return config
}

// InitConfig processes command-line flags, extracts the default config file
// if none exists, loads it, and applies environment overrides.
func InitConfig() (*Config, error) {
	configFile := flag.String("config", filepath.Join(GetInstallDir(), "config.toml"), "path to config file")
	port := flag.Int("port", 0, "override HTTP server port")
	dataDir := flag.String("data", "", "override data directory")
	verbose := flag.Bool("v", false, "enable verbose capture logging")
	noCamera := flag.Bool("nocamera", false, "disable camera initialization")
	flag.Parse()

	if err := ExtractDefaultConfig(*configFile); err != nil {
		return nil, fmt.Errorf("failed to create default config: %w", err)
	}

	config := LoadConfig(*configFile)

	if *port != 0 {
		config.Port = *port
	}
	if *dataDir != "" {
		config.DataDir = *dataDir
	}
	config.Verbose = *verbose || logging.VerboseFromEnv()
	config.DisableCamera = *noCamera

	applyEnvOverrides(&config)

	logging.SetVerbose(config.Verbose)
	return &config, nil
}

// applyEnvOverrides applies the documented environment variables on top of
// the file configuration.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PREFERRED_CAMERA_ID"); env != "" {
		id, err := strconv.Atoi(env)
		if err != nil {
			logging.WarningLogger.Printf("Invalid PREFERRED_CAMERA_ID %q, ignoring", env)
		} else {
			config.PreferredCameraID = id
		}
	}
	if isTruthy(os.Getenv("DISABLE_CAMERA")) {
		config.DisableCamera = true
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// UpdatePreferredCamera persists the preferred device id back to the config
// file so the next start opens the same camera.
func (c *Config) UpdatePreferredCamera(deviceID int) error {
	c.Camera.PreferredDevice = deviceID
	if c.ConfigPath == "" {
		return nil
	}

	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "preferredDevice") {
			lines[i] = fmt.Sprintf("preferredDevice = %d", deviceID)
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, "[camera]", fmt.Sprintf("preferredDevice = %d", deviceID))
	}

	if err := os.WriteFile(c.ConfigPath, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	logging.InfoLogger.Printf("Persisted preferred camera %d to %s", deviceID, c.ConfigPath)
	return nil
}

// GetInstallDir returns the directory the application runs from.
func GetInstallDir() string {
	exePath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exePath)
}
