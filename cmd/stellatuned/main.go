// Command stellatuned runs one engine instance as a standalone daemon:
// load the persisted config, wire a filesystem-backed track opener, start
// the introspection server, and serve until interrupted.
//
// Grounded on the teacher's server/main.go (flag parsing, signal-driven
// graceful shutdown via a cancelable context) — generalized from the
// chat/voice room server to the engine facade.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stellatune/engine/engine"
	"github.com/stellatune/engine/internal/engineconfig"
	"github.com/stellatune/engine/internal/pluginrt"
	"github.com/stellatune/engine/internal/protocol"
)

func main() {
	mediaRoot := flag.String("media-root", ".", "directory TrackRef URIs are resolved against")
	introspectAddr := flag.String("introspect-addr", ":7979", "HTTP/WS introspection listen address (empty to disable)")
	pluginsRoot := flag.String("plugins-root", "", "plugin discovery root (overrides the persisted config if set)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := engineconfig.Load()
	if err != nil {
		log.Fatalf("[stellatuned] load config: %v", err)
	}
	if *pluginsRoot != "" {
		cfg.PluginsRoot = *pluginsRoot
	}

	e, err := engine.New(engine.Options{
		Config:         &cfg,
		StreamOpener:   filesystemOpener(*mediaRoot),
		Logger:         logger,
		IntrospectAddr: *introspectAddr,
	})
	if err != nil {
		log.Fatalf("[stellatuned] construct engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		log.Fatalf("[stellatuned] start engine: %v", err)
	}
	logger.Info("engine started", "instance_id", e.ID(), "introspect_addr", *introspectAddr)

	go logEvents(logger, e.Events())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	if err := e.Stop(); err != nil {
		log.Fatalf("[stellatuned] stop engine: %v", err)
	}
}

func logEvents(logger *slog.Logger, events <-chan protocol.Event) {
	for ev := range events {
		logger.Debug("engine event", "kind", protocol.EventKind(ev))
	}
}

// filesystemOpener resolves a TrackRef's URI as a path relative to root,
// the minimal default collaborator for standalone daemon operation. A
// media library with scanning/metadata/playlists is an explicit non-goal
// of the engine itself and is expected to supply its own opener when
// embedding the engine as a library instead of running this daemon.
func filesystemOpener(root string) engine.StreamOpener {
	return func(ctx context.Context, track protocol.TrackRef) (pluginrt.DecoderStream, string, error) {
		path := filepath.Join(root, track.URI)
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("stellatuned: open %q: %w", path, err)
		}
		return f, filepath.Ext(path), nil
	}
}
