package control

import "github.com/stellatune/engine/internal/protocol"

// FSM is the Player finite state machine:
//
//	        Play               low-watermark
//	Stopped ───▶ Buffering ◀──────────── Playing
//	   ▲          │  ≥ high-watermark       │
//	   │          ▼ (stable N ticks)        │
//	   │        Playing ──────┐             │
//	   │                       │ Pause      │
//	   │                       ▼            │
//	   └── Stop ──────────── Paused ◀───────┘
//
// FSM only tracks state and the resume-stability gate; callers (the actor)
// decide when to feed buffered-ms samples and when commands arrive.
type FSM struct {
	state protocol.PlayerState
	gate  Gate
}

// NewFSM returns an FSM in the Stopped state.
func NewFSM() *FSM {
	return &FSM{state: protocol.Stopped}
}

// State returns the current state.
func (f *FSM) State() protocol.PlayerState { return f.state }

// transition moves to next and returns whether the state actually changed
// (callers emit StateChanged only on an actual transition).
func (f *FSM) transition(next protocol.PlayerState) bool {
	if f.state == next {
		return false
	}
	f.state = next
	return true
}

// HandlePlay handles the Play command: Stopped/Paused -> Buffering.
func (f *FSM) HandlePlay() bool {
	if f.state == protocol.Stopped || f.state == protocol.Paused {
		f.gate.Reset()
		return f.transition(protocol.Buffering)
	}
	return false
}

// HandlePause handles the Pause command: Playing/Buffering -> Paused.
func (f *FSM) HandlePause() bool {
	if f.state == protocol.Playing || f.state == protocol.Buffering {
		return f.transition(protocol.Paused)
	}
	return false
}

// HandleStop handles the Stop command: any state -> Stopped.
func (f *FSM) HandleStop() bool {
	f.gate.Reset()
	return f.transition(protocol.Stopped)
}

// HandleEof handles end-of-stream with no carry-over track queued:
// any state -> Stopped.
func (f *FSM) HandleEof() bool {
	f.gate.Reset()
	return f.transition(protocol.Stopped)
}

// Tick feeds one buffering observation. In Playing, dropping at or below
// the low watermark immediately re-enters Buffering. In Buffering, it
// takes BufferResumeStableTicks consecutive ticks at/above the resume
// threshold (see ResumeThreshold) to transition back to Playing.
func (f *FSM) Tick(bufferedMs float64, w Watermarks, targetGain float64) bool {
	switch f.state {
	case protocol.Playing:
		if bufferedMs <= w.LowMs {
			f.gate.Reset()
			return f.transition(protocol.Buffering)
		}
		return false
	case protocol.Buffering:
		if f.gate.Observe(bufferedMs, w, targetGain) {
			return f.transition(protocol.Playing)
		}
		return false
	default:
		return false
	}
}
