// Package sandbox hosts plugin sidecar processes and carries the narrow
// set of host imports the runtime design permits a plugin module:
// runtime-root path, event-poll (host→plugin), control-send (plugin→host;
// ReadControl applies no timeout), and per-capability service imports (host
// I/O stream, HTTP client, sidecar launcher).
//
// Grounded on the teacher's client/server WebTransport session handling
// (client.go's control-stream-then-datagram-relay pattern and
// server_test.go's webtransport.Dialer/quic.Config setup), generalized
// from a voice-chat session to a host/plugin-sidecar control channel.
package sandbox

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/quic-go/webtransport-go"
)

// controlSendTimeout is the 5 s bound for plugin→host control-send calls.
// No Session method applies it: ReadControl blocks until a message arrives
// or the control stream fails.
const controlSendTimeout = 5 * time.Second

// Launcher starts a plugin's sidecar process. The default implementation
// execs the plugin's library_path as a subprocess; tests substitute a
// fake that never actually spawns anything.
type Launcher interface {
	Launch(ctx context.Context, pluginID, libraryPath, runtimeRoot, hostAddr string) (Sidecar, error)
}

// Sidecar is a running plugin process handle.
type Sidecar interface {
	Wait() error
	Kill() error
}

// execLauncher is the production Launcher, spawning the plugin binary
// directly with its runtime root and the host's WebTransport address
// passed as environment variables — the only information a sandboxed
// plugin is handed at startup.
type execLauncher struct{}

// NewExecLauncher returns the subprocess-backed Launcher.
func NewExecLauncher() Launcher { return execLauncher{} }

func (execLauncher) Launch(ctx context.Context, pluginID, libraryPath, runtimeRoot, hostAddr string) (Sidecar, error) {
	cmd := exec.CommandContext(ctx, libraryPath)
	cmd.Env = append(cmd.Env,
		"STELLATUNE_PLUGIN_ID="+pluginID,
		"STELLATUNE_RUNTIME_ROOT="+runtimeRoot,
		"STELLATUNE_HOST_ADDR="+hostAddr,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: launch plugin %s: %w", pluginID, err)
	}
	return cmdSidecar{cmd}, nil
}

type cmdSidecar struct{ cmd *exec.Cmd }

func (s cmdSidecar) Wait() error { return s.cmd.Wait() }
func (s cmdSidecar) Kill() error {
	if s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Kill()
}

// Event is one host→plugin event delivered over the event-poll stream
// (e.g. a shutdown notice or a config nudge originating outside the
// plugin's own control-send channel).
type Event struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ControlMessage is one plugin→host message sent over the bounded
// control-send channel.
type ControlMessage struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is the host-side handle to one connected plugin sidecar: a
// WebTransport session carrying a control stream (plugin→host, newline
// JSON) and an event stream (host→plugin, newline JSON).
type Session struct {
	pluginID string
	wt       *webtransport.Session

	ctrlMu sync.Mutex
	ctrlR  *bufio.Reader
	ctrlW  io.Writer

	eventMu sync.Mutex
	eventW  io.Writer
}

// newSession wraps an accepted WebTransport session once both the control
// and event streams have been opened.
func newSession(pluginID string, wt *webtransport.Session, ctrl io.ReadWriter, event io.Writer) *Session {
	return &Session{
		pluginID: pluginID,
		wt:       wt,
		ctrlR:    bufio.NewReader(ctrl),
		ctrlW:    ctrl,
		eventW:   event,
	}
}

// ReadControl blocks for the next control message the plugin sends, or
// returns an error once the session closes.
func (s *Session) ReadControl() (ControlMessage, error) {
	s.ctrlMu.Lock()
	line, err := s.ctrlR.ReadBytes('\n')
	s.ctrlMu.Unlock()
	if err != nil {
		return ControlMessage{}, err
	}
	var msg ControlMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("sandbox: decode control message: %w", err)
	}
	return msg, nil
}

// SendEvent pushes one host→plugin event, bounded by ctx.
func (s *Session) SendEvent(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	done := make(chan error, 1)
	go func() {
		s.eventMu.Lock()
		defer s.eventMu.Unlock()
		_, err := s.eventW.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the underlying WebTransport session.
func (s *Session) Close() error {
	return s.wt.CloseWithError(0, "shutdown")
}

// Host accepts sidecar connections over WebTransport and hands each one
// to onSession as it completes its control/event stream handshake.
type Host struct {
	addr      string
	tlsConfig *tls.Config
	launcher  Launcher
	onSession func(*Session)
}

// NewHost returns a Host listening on addr with tlsConfig, using launcher
// to start plugin sidecars and onSession to receive each completed
// session handshake.
func NewHost(addr string, tlsConfig *tls.Config, launcher Launcher, onSession func(*Session)) *Host {
	return &Host{addr: addr, tlsConfig: tlsConfig, launcher: launcher, onSession: onSession}
}

// Launch starts pluginID's sidecar at libraryPath, rooted at runtimeRoot,
// pointed at this Host's address.
func (h *Host) Launch(ctx context.Context, pluginID, libraryPath, runtimeRoot string) (Sidecar, error) {
	return h.launcher.Launch(ctx, pluginID, libraryPath, runtimeRoot, h.addr)
}

// Accept wraps an already-upgraded WebTransport session as a plugin
// Session, expecting the plugin to open exactly two streams in order: the
// control stream, then the event stream.
func Accept(ctx context.Context, pluginID string, wt *webtransport.Session) (*Session, error) {
	ctrl, err := wt.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox: accept control stream: %w", err)
	}
	event, err := wt.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox: accept event stream: %w", err)
	}
	return newSession(pluginID, wt, ctrl, event), nil
}

// ServeHTTP is provided so a *Host can be mounted directly on an
// http.ServeMux entry backed by an HTTP/3 (webtransport) listener owned
// by the caller; Host itself does not open a listening socket so it can
// share one with the introspection server's mux.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "sandbox host requires an HTTP/3 WebTransport upgrade path", http.StatusUpgradeRequired)
}
