// Package engineconfig persists the engine's own tunables — watermarks,
// timeouts, the plugins root, and the preferred output route — as JSON
// under the user's config directory, written atomically so a crash mid-save
// never leaves a torn file behind.
//
// Grounded on the teacher's jobs.writeM3U/writeXMLTV (renameio-backed
// durable write) generalized from playlist/EPG output files to the
// engine's own settings file, and on the teacher client's Config type
// (client/config.go) for the flat tunables-as-JSON shape.
package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

const (
	configDirName  = "stellatune"
	configFileName = "engine.json"
)

// OutputRoute mirrors devicesink.Route without importing that package, so
// engineconfig has no dependency on the audio runtime.
type OutputRoute struct {
	Backend  string `json:"backend"`
	DeviceID string `json:"device_id,omitempty"`
}

// Config is the full set of engine tunables persisted across restarts.
type Config struct {
	LowWatermarkMs      uint64      `json:"low_watermark_ms"`
	HighWatermarkMs     uint64      `json:"high_watermark_ms"`
	ResumeStableTicks   int         `json:"resume_stable_ticks"`
	WriteTimeoutMs      uint64      `json:"write_timeout_ms"`
	FlushTimeoutMs      uint64      `json:"flush_timeout_ms"`
	PluginsRoot         string      `json:"plugins_root"`
	LeaseDBPath         string      `json:"lease_db_path,omitempty"`
	PreferredRoute      OutputRoute `json:"preferred_route"`
	MatchTrackSampleRate bool       `json:"match_track_sample_rate"`
	GaplessPlayback     bool        `json:"gapless_playback"`
	SeekTrackFade       bool        `json:"seek_track_fade"`
}

// Default returns the engine's built-in defaults. ResumeStableTicks,
// WriteTimeoutMs and FlushTimeoutMs carry the same values as the control
// and devicesink constants; the watermark fields are zero, since control
// picks its watermark pair per backend. The audio packages use their own
// constants and do not read these fields.
func Default() Config {
	return Config{
		LowWatermarkMs:       0,
		HighWatermarkMs:      0,
		ResumeStableTicks:    3,
		WriteTimeoutMs:       30,
		FlushTimeoutMs:       350,
		PluginsRoot:          "",
		PreferredRoute:       OutputRoute{Backend: "shared"},
		MatchTrackSampleRate: true,
		GaplessPlayback:      true,
		SeekTrackFade:        true,
	}
}

// Path returns the absolute path to the engine's persisted config file
// under os.UserConfigDir().
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("engineconfig: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, configDirName, configFileName), nil
}

// Load reads the persisted config, falling back to Default() if no config
// file exists yet.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("engineconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("engineconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save atomically persists cfg: write-to-temp, fsync, rename, so a process
// killed mid-save never leaves a half-written config behind for the next
// launch to choke on.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("engineconfig: create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("engineconfig: encode config: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("engineconfig: open pending file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("engineconfig: write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("engineconfig: replace config file: %w", err)
	}
	return nil
}

// DefaultLeaseDBPath returns the lease store path used when LeaseDBPath is
// unset but a plugins root is configured: next to the engine config file.
func DefaultLeaseDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("engineconfig: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, configDirName, "leases.db"), nil
}

// WatermarkDurations converts the persisted millisecond fields to
// time.Duration for callers that need them in that form.
func (c Config) WatermarkDurations() (low, high time.Duration) {
	return time.Duration(c.LowWatermarkMs) * time.Millisecond, time.Duration(c.HighWatermarkMs) * time.Millisecond
}
