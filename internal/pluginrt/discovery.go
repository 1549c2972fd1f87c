package pluginrt

import (
	"fmt"
	"os"
	"path/filepath"

	"log/slog"
)

const manifestFileName = "manifest.json"

// Fingerprint is the source-change detector for a plugin's backing
// library: {library_path, file_size, modified_unix_ms}. Two fingerprints
// compare equal iff the plugin is unchanged on disk.
type Fingerprint struct {
	LibraryPath   string
	FileSize      int64
	ModifiedUnixMs int64
}

// Discovered pairs a decoded manifest with the fingerprint of its backing
// library file at discovery time.
type Discovered struct {
	Manifest    Manifest
	Fingerprint Fingerprint
}

// Discover walks root for one manifest.json per immediate subdirectory and
// returns a Discovered entry for each valid one. Invalid manifests are
// logged and skipped rather than failing the whole scan.
func Discover(root string, logger *slog.Logger) ([]Discovered, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("pluginrt: read plugins root %s: %w", root, err)
	}

	var out []Discovered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(root, entry.Name(), manifestFileName)
		m, err := loadManifest(manifestPath)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("skipping invalid plugin manifest", "dir", entry.Name(), "err", err)
			}
			continue
		}
		fp, err := fingerprint(m.LibraryPath)
		if err != nil {
			logger.Warn("skipping plugin with unreadable library", "id", m.ID, "err", err)
			continue
		}
		out = append(out, Discovered{Manifest: m, Fingerprint: fp})
	}
	return out, nil
}

func fingerprint(libraryPath string) (Fingerprint, error) {
	info, err := os.Stat(libraryPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat library %s: %w", libraryPath, err)
	}
	return Fingerprint{
		LibraryPath:    libraryPath,
		FileSize:       info.Size(),
		ModifiedUnixMs: info.ModTime().UnixMilli(),
	}, nil
}
