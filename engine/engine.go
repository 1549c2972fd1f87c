// Package engine assembles the decode worker, sink worker, control actor,
// device sink, plugin runtime, and introspection server into a single
// playable engine instance. Grounded on the teacher client's AudioEngine
// (client/audio.go): one facade type with a Start(ctx)/Stop() lifecycle
// and a public event channel, generalized here from a single hardwired
// stream into the full pipeline the rest of this module implements.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stellatune/engine/internal/control"
	"github.com/stellatune/engine/internal/decodeworker"
	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/engineconfig"
	"github.com/stellatune/engine/internal/introspect"
	"github.com/stellatune/engine/internal/metrics"
	"github.com/stellatune/engine/internal/pluginrt"
	"github.com/stellatune/engine/internal/pluginrt/builtin"
	"github.com/stellatune/engine/internal/protocol"
	"github.com/stellatune/engine/internal/sinkworker"
	"github.com/stellatune/engine/internal/transform"
)

// shutdownGrace bounds how long Stop waits for the sink worker to drain
// and flush before exiting anyway.
const shutdownGrace = 2 * time.Second

// sinkBlockRingCapacity is the depth of the decode-to-sink audio block
// ring.
const sinkBlockRingCapacity = 64

// StreamOpener resolves a TrackRef to an openable byte stream plus a file
// extension hint, the one external collaborator this engine depends on
// (media library lookup is explicitly out of scope here).
type StreamOpener func(ctx context.Context, track protocol.TrackRef) (pluginrt.DecoderStream, string, error)

// Options configures an Engine at construction time. StreamOpener is
// required (New returns an error without it); other missing fields fall
// back to engineconfig.Default() and the built-in Opus decoder.
type Options struct {
	Config       *engineconfig.Config
	StreamOpener StreamOpener
	Decoder      pluginrt.Decoder
	Logger       *slog.Logger

	// IntrospectAddr, if non-empty, starts the HTTP introspection server
	// listening on this address when Start runs.
	IntrospectAddr string

	// NewBackend overrides the device sink's output backend, defaulting to
	// PortAudio. Tests substitute an in-process fake here.
	NewBackend func() devicesink.StreamBackend
}

// Engine is one playable instance: decode worker, sink worker, control
// actor, device sink, plugin runtime, and (optionally) the introspection
// server, wired together and driven by a single Start/Stop lifecycle.
type Engine struct {
	id string

	cfg    engineconfig.Config
	opener StreamOpener
	logger *slog.Logger

	sinkControl *devicesink.Control
	sinkAdapter *devicesink.Adapter
	sinkStage   *devicesink.Stage
	sinkWorker  *sinkworker.Worker

	decoder      pluginrt.Decoder
	decodeWorker *decodeworker.Worker
	controlActor *control.Actor

	runtime  *pluginrt.Runtime
	hub      *introspect.Hub
	registry *metrics.Registry
	http     *introspect.Server
	httpAddr string

	events       chan protocol.Event
	actorEvents  chan protocol.Event

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	// lifecycleStop is never closed: the decode worker and control actor
	// only exit via their own Shutdown-command cascade, so a race between
	// ctx cancellation and a queued shutdown command landing first (which
	// would skip runner/prewarmed cleanup) cannot happen.
	lifecycleStop chan struct{}

	coreGroup *errgroup.Group
	sinkWG    sync.WaitGroup
}

// New assembles an Engine from opts. It does not start any goroutine;
// call Start to do that.
func New(opts Options) (*Engine, error) {
	cfg := engineconfig.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.StreamOpener == nil {
		return nil, fmt.Errorf("engine: StreamOpener is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dec := opts.Decoder
	if dec == nil {
		dec = builtin.NewOpusDecoder(48000, 2)
	}

	e := &Engine{
		id:          uuid.NewString(),
		cfg:         cfg,
		opener:      opts.StreamOpener,
		decoder:     dec,
		logger:      logger,
		httpAddr:      opts.IntrospectAddr,
		events:        make(chan protocol.Event, 256),
		actorEvents:   make(chan protocol.Event, 256),
		lifecycleStop: make(chan struct{}),
	}

	e.sinkControl = devicesink.NewControl()
	e.sinkControl.SetRoute(devicesink.Route{
		Backend:  parseBackend(cfg.PreferredRoute.Backend),
		DeviceID: cfg.PreferredRoute.DeviceID,
	})

	onSinkErr := func(err error) { e.sinkAdapter.ReportCallbackError(err) }
	newBackend := opts.NewBackend
	if newBackend == nil {
		newBackend = func() devicesink.StreamBackend { return devicesink.NewPortAudioBackend(onSinkErr) }
	}
	e.sinkAdapter = devicesink.New(newBackend, e.sinkControl)
	e.sinkStage = devicesink.NewStage("device_sink", e.sinkAdapter)
	e.sinkWorker = sinkworker.New([]transform.SinkStage{e.sinkStage}, sinkBlockRingCapacity)

	workerOpts := decodeworker.DefaultOptions()
	workerOpts.GaplessPlayback = cfg.GaplessPlayback
	workerOpts.SeekTrackFade = cfg.SeekTrackFade
	e.decodeWorker = decodeworker.New(e.open, e.sinkWorker, e.actorEvents, workerOpts).
		WithSink(e.sinkAdapter, e.sinkControl)

	e.controlActor = control.NewActor(e.decodeWorker, e.sinkControl, e.actorEvents, logger)

	if cfg.PluginsRoot != "" {
		e.runtime = pluginrt.NewRuntime(cfg.PluginsRoot, builtin.NewActivator(), logger)

		leaseDBPath := cfg.LeaseDBPath
		if leaseDBPath == "" {
			if p, err := engineconfig.DefaultLeaseDBPath(); err == nil {
				leaseDBPath = p
			}
		}
		if leaseDBPath != "" {
			store, err := pluginrt.OpenLeaseStore(leaseDBPath)
			if err != nil {
				logger.Warn("engine: open lease store, continuing without a lease audit trail", "path", leaseDBPath, "err", err)
			} else {
				e.runtime = e.runtime.WithLeaseStore(store)
			}
		}
	}
	e.hub = introspect.NewHub(logger)
	e.registry = metrics.NewRegistry()

	return e, nil
}

// ID returns the engine instance's generated identifier, surfaced in
// introspection output so multiple engines in one process are distinguishable.
func (e *Engine) ID() string { return e.id }

// Events returns the channel every published protocol.Event is fanned out
// to, alongside the introspection hub's websocket broadcast.
func (e *Engine) Events() <-chan protocol.Event { return e.events }

// Submit forwards a command to the control actor.
func (e *Engine) Submit(cmd protocol.Command) { e.controlActor.Submit(cmd) }

// Runtime returns the plugin runtime, or nil if no plugins root was
// configured.
func (e *Engine) Runtime() *pluginrt.Runtime { return e.runtime }

// open is the decodeworker.Opener: it resolves track via the configured
// StreamOpener, opens a decoder session, builds a fresh transform graph
// from whatever DSP chain mutations are currently staged, and wraps it all
// in a GraphRunner.
func (e *Engine) open(track protocol.TrackRef, positionMs uint64) (decodeworker.Runner, error) {
	ctx := context.Background()
	stream, ext, err := e.opener(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("engine: open stream for %q: %w", track.URI, err)
	}

	session, err := e.decoder.Open(ctx, stream, ext)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("engine: open decoder session for %q: %w", track.URI, err)
	}

	graph := transform.NewGraph()
	for _, m := range e.decodeWorker.DspChainMutations() {
		mutation, ok := m.(transform.Mutation)
		if !ok {
			continue
		}
		if err := graph.Apply(mutation); err != nil {
			session.Close()
			return nil, fmt.Errorf("engine: apply staged dsp mutation: %w", err)
		}
	}

	runner, err := decodeworker.NewGraphRunner(session, graph, opusFrameSamples)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("engine: build graph runner for %q: %w", track.URI, err)
	}

	if err := e.sinkAdapter.Prepare(runner.StreamSpec()); err != nil {
		runner.Close()
		return nil, fmt.Errorf("engine: prepare device sink for %q: %w", track.URI, err)
	}

	if positionMs > 0 {
		if err := runner.SeekMs(positionMs); err != nil {
			e.logger.Warn("engine: seek to starting position failed", "track", track.URI, "err", err)
		}
	}
	return runner, nil
}

// opusFrameSamples mirrors the built-in Opus decoder's native frame size;
// a plugin-provided decoder's own ReadPcmF32 honors maxFrames as a ceiling,
// not an exact count, so this is a reasonable chunk size regardless of
// which Decoder produced the session.
const opusFrameSamples = 960

func parseBackend(s string) devicesink.Backend {
	switch s {
	case "exclusive":
		return devicesink.Exclusive
	case "plugin_sink":
		return devicesink.PluginSink
	default:
		return devicesink.Shared
	}
}

// Start launches every goroutine: the decode worker, control actor, event
// fan-out, and (if configured) the introspection server, under a shared
// errgroup, plus the sink worker under its own WaitGroup (it only returns
// once Stop explicitly shuts it down, so it cannot share the errgroup's
// single Wait call without deadlocking Stop).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	e.running = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	e.coreGroup = g
	e.mu.Unlock()

	e.sinkWG.Add(1)
	go func() {
		defer e.sinkWG.Done()
		e.sinkWorker.Run()
	}()

	g.Go(func() error {
		e.decodeWorker.Run(e.lifecycleStop)
		return nil
	})
	g.Go(func() error {
		e.controlActor.Run(e.lifecycleStop)
		return nil
	})
	g.Go(func() error {
		e.runEventFanout(gctx.Done())
		return nil
	})

	if e.runtime != nil {
		g.Go(func() error {
			return e.runtime.Watch(gctx.Done())
		})
	}

	if e.httpAddr != "" {
		e.http = introspect.New(e.hub, e.runtime, e.registry).
			WithQueuedBlocksGauge(e.sinkWorker.QueuedBlocks)
		g.Go(func() error {
			return e.http.Run(gctx, e.httpAddr)
		})
	}

	return nil
}

// runEventFanout delivers every event the control actor/decode worker
// publish to both the introspection hub's broadcast and this Engine's own
// public Events channel, decoupling the actor's single internal channel
// from however many consumers the facade has.
func (e *Engine) runEventFanout(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-e.actorEvents:
			if !ok {
				return
			}
			e.hub.Broadcast(ev)
			select {
			case e.events <- ev:
			default:
				e.logger.Warn("engine: public events channel full, dropping event", "kind", protocol.EventKind(ev))
			}
		}
	}
}

// Stop cascades a shutdown through the control actor (which shuts the
// decode worker down), waits for the core goroutines to exit, then shuts
// the sink worker down and waits for it, and finally closes the public
// events channel. Safe to call once; a second call is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	g := e.coreGroup
	e.mu.Unlock()

	e.controlActor.Submit(protocol.Shutdown{})
	cancel()
	if err := g.Wait(); err != nil {
		e.logger.Warn("engine: core goroutine returned an error", "err", err)
	}

	if err := e.sinkWorker.Shutdown(true, shutdownGrace); err != nil {
		e.logger.Warn("engine: sink worker shutdown", "err", err)
	}
	e.sinkWG.Wait()

	close(e.events)
	return nil
}
