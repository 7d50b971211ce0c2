// Package session implements the per-peer state machine shared by the
// server and client transports: None → Handshake → Active →
// TimedOut/Terminated, or Handshake → Refused. Sessions are created by
// their owning transport and mutated only through the methods here.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/cipher"
)

// State is a session's position in the connection lifecycle.
type State int32

const (
	StateNone State = iota
	StateHandshake
	StateActive
	StateRefused
	StateTimedOut
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateHandshake:
		return "handshake"
	case StateActive:
		return "active"
	case StateRefused:
		return "refused"
	case StateTimedOut:
		return "timed-out"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Role distinguishes a peer that may send input from one that only views.
type Role int

const (
	RoleViewer Role = iota
	RoleController
)

func (r Role) String() string {
	if r == RoleController {
		return "controller"
	}
	return "viewer"
}

// TerminateReason explains why a session left the Active state.
type TerminateReason int

const (
	ReasonNone TerminateReason = iota
	ReasonTimeout
	ReasonExplicitClose
	ReasonRefused
	ReasonServerShutdown
)

func (r TerminateReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonExplicitClose:
		return "explicit-close"
	case ReasonRefused:
		return "refused"
	case ReasonServerShutdown:
		return "server-shutdown"
	default:
		return "none"
	}
}

// Session is a peer's connection state. The server transport creates
// one for every HELLO it receives (a refused HELLO leaves it Refused);
// a DISCOVERY probe creates none. It is destroyed when the peer
// disconnects, times out, or the owning transport shuts down — it is never reused
// across reconnects; a fresh Handle is minted instead (spec.md §4.2).
type Session struct {
	Handle       uint64
	PeerAddr     string
	PeerPlatform string
	Role         Role

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanoseconds

	mu     sync.Mutex
	cipher *cipher.PSKCipher
}

// New constructs a session in State None with the given handle.
func New(handle uint64, peerAddr, peerPlatform string, role Role) *Session {
	s := &Session{
		Handle:       handle,
		PeerAddr:     peerAddr,
		PeerPlatform: peerPlatform,
		Role:         role,
	}
	s.state.Store(int32(StateNone))
	s.Touch()
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

// Touch records activity, resetting the disconnect timer.
func (s *Session) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IsExpired reports whether the session has been inactive longer than
// timeout while in the Active state.
func (s *Session) IsExpired(timeout time.Duration) bool {
	if s.State() != StateActive {
		return false
	}
	return time.Since(s.LastActivity()) > timeout
}

// Handshake transitions None → Handshake on a received HELLO/DISCOVERY.
func (s *Session) Handshake() bool {
	return s.state.CompareAndSwap(int32(StateNone), int32(StateHandshake))
}

// Activate transitions Handshake → Active on peer ACK.
func (s *Session) Activate() bool {
	if s.state.CompareAndSwap(int32(StateHandshake), int32(StateActive)) {
		s.Touch()
		return true
	}
	return false
}

// Refuse transitions Handshake → Refused.
func (s *Session) Refuse() bool {
	return s.state.CompareAndSwap(int32(StateHandshake), int32(StateRefused))
}

// Timeout transitions Active → TimedOut, the first step toward
// Terminated (spec.md's state diagram routes TimedOut through an
// explicit Terminate rather than treating it as terminal itself).
func (s *Session) Timeout() bool {
	return s.state.CompareAndSwap(int32(StateActive), int32(StateTimedOut))
}

// Terminate transitions the session to Terminated from any state.
// It is idempotent: calling it on an already-terminated session is a
// no-op that returns false.
func (s *Session) Terminate() bool {
	for {
		cur := State(s.state.Load())
		if cur == StateTerminated {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(StateTerminated)) {
			return true
		}
	}
}

// SetCipher installs a session-scoped cipher (nil clears it). The
// cipher, once set, is applied to every outgoing message and expected
// on every incoming one for this session, on every channel.
func (s *Session) SetCipher(c *cipher.PSKCipher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cipher = c
}

func (s *Session) Cipher() *cipher.PSKCipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cipher
}
