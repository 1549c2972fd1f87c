package pluginrt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Capability is one of the closed set of capability kinds a plugin
// manifest may declare.
type Capability string

const (
	CapabilityDecoder        Capability = "Decoder"
	CapabilityDsp            Capability = "Dsp"
	CapabilitySourceCatalog  Capability = "SourceCatalog"
	CapabilityLyricsProvider Capability = "LyricsProvider"
	CapabilityOutputSink     Capability = "OutputSink"
)

// Manifest describes one discovered plugin, decoded from its manifest.json.
type Manifest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	LibraryPath  string            `json:"library_path"`
	Capabilities []Capability      `json:"capabilities"`
	Metadata     map[string]string `json:"metadata_json"`
}

// Validate checks the manifest has the fields the runtime depends on.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("pluginrt: manifest missing id")
	}
	if m.LibraryPath == "" {
		return fmt.Errorf("pluginrt: manifest %s missing library_path", m.ID)
	}
	if len(m.Capabilities) == 0 {
		return fmt.Errorf("pluginrt: manifest %s declares no capabilities", m.ID)
	}
	return nil
}

// loadManifest reads and decodes one manifest.json file.
func loadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.LibraryPath != "" && !filepath.IsAbs(m.LibraryPath) {
		m.LibraryPath = filepath.Join(filepath.Dir(path), m.LibraryPath)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
