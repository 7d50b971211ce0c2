// Package server implements the streaming core's server transport: a
// single acceptor goroutine owns the UDP socket (and an optional raw
// TCP listener; websocket connections are not accepted), drives the
// session state machine, and
// fragments/encrypts/sends outbound frames under a per-session lock
// (spec.md §4.3).
package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/coreerr"
	"github.com/deskstream/streamcore/internal/streaming/input"
	"github.com/deskstream/streamcore/internal/streaming/protocol"
	"github.com/deskstream/streamcore/internal/streaming/rtcpsignal"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

var log = logging.L("transport/server")

// Config bundles the tunables the server transport needs, mirroring
// the fields internal/config.Config carries for it.
type Config struct {
	ListenUDPAddr string
	ListenTCPAddr string // empty disables the raw TCP listener

	MaxFragmentSizeCeiling int
	MaxFragmentSizeFloor   int
	DatagramInterval       time.Duration
	LostMsgThreshold       int
	TurningPointThreshold  int

	DisconnectTimeout time.Duration

	CipherPassphrase string
	CipherSalt       string

	ForceIDRCoalesceWindow time.Duration

	// StatsInterval is the periodic STATS-report cadence (spec.md §6);
	// zero uses DefaultStatsInterval.
	StatsInterval time.Duration
}

// subscriberState is the server's per-subscriber protocol bookkeeping
// that doesn't belong on session.Subscriber itself (it's acceptor-side
// only, never shared with the client transport's mirror type).
type subscriberState struct {
	sub         *session.Subscriber
	udpAddr     *net.UDPAddr
	sendMu      sync.Mutex
	adaptive    *protocol.AdaptiveFragmentSize
	retransmit  *protocol.RetransmitCache
	controllers *input.Manager

	msgIDMu sync.Mutex
	msgIDs  map[wire.Channel]uint32
}

// nextMsgID hands out the next per-channel monotonic message ID for
// this subscriber (spec.md §4.1).
func (st *subscriberState) nextMsgID(ch wire.Channel) uint32 {
	st.msgIDMu.Lock()
	defer st.msgIDMu.Unlock()
	if st.msgIDs == nil {
		st.msgIDs = make(map[wire.Channel]uint32)
	}
	st.msgIDs[ch]++
	return st.msgIDs[ch]
}

// Server is the UDP(+TCP) acceptor for one streaming endpoint.
type Server struct {
	cfg       Config
	callbacks Callbacks

	udpConn *net.UDPConn
	tcpLn   net.Listener

	sessions  *session.Manager
	limiters  *PeerLimiters
	reasm     *protocol.Reassembler
	forceIDR  map[int32]*rtcpsignal.ForceIDRCoalescer
	forceIDRMu sync.Mutex

	subsMu  sync.RWMutex
	byAddr  map[string]*subscriberState
	byHandle map[uint64]*subscriberState

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, callbacks Callbacks) *Server {
	return &Server{
		cfg:       cfg,
		callbacks: callbacks,
		sessions:  session.NewManager(),
		limiters:  NewPeerLimiters(),
		reasm:     protocol.NewReassembler(protocol.DefaultReassemblyWindow, protocol.DefaultMaxInFlightMessages),
		forceIDR:  make(map[int32]*rtcpsignal.ForceIDRCoalescer),
		byAddr:    make(map[string]*subscriberState),
		byHandle:  make(map[uint64]*subscriberState),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listeners and launches the acceptor goroutine(s).
func (s *Server) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.cfg.ListenUDPAddr)
	if err != nil {
		return fmt.Errorf("transport/server: resolve UDP addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPortBusy, err)
	}
	s.udpConn = conn

	if s.cfg.ListenTCPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.ListenTCPAddr)
		if err != nil {
			conn.Close()
			return fmt.Errorf("%w: %v", coreerr.ErrPortBusy, err)
		}
		s.tcpLn = ln
		s.wg.Add(1)
		go s.acceptTCPLoop()
	}

	s.wg.Add(3)
	go s.udpReceiveLoop()
	go s.tickLoop()
	go s.statsLoop()

	log.Info("server transport started", "udp", s.cfg.ListenUDPAddr, "tcp", s.cfg.ListenTCPAddr)
	return nil
}

// Stop closes listeners, terminates every session and waits for the
// acceptor goroutines to exit.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.udpConn != nil {
			s.udpConn.Close()
		}
		if s.tcpLn != nil {
			s.tcpLn.Close()
		}
	})
	s.wg.Wait()

	s.sessions.Shutdown(func(sess *session.Session) {
		if st := s.stateForHandle(sess.Handle); st != nil && s.callbacks.OnDisconnected != nil {
			s.callbacks.OnDisconnected(st.sub, session.ReasonServerShutdown)
		}
	})
	return nil
}

// LocalUDPAddr returns the bound UDP address, useful when ListenUDPAddr
// specifies port 0 for tests.
func (s *Server) LocalUDPAddr() *net.UDPAddr {
	return s.udpConn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) stateForHandle(handle uint64) *subscriberState {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return s.byHandle[handle]
}

// tickLoop advances session timeouts at the fixed 1ms cadence spec.md
// §4.2 calls for.
func (s *Server) tickLoop() {
	defer s.wg.Done()
	t := time.NewTicker(1 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.sessions.ExpireInactive(s.cfg.DisconnectTimeout, func(sess *session.Session) {
				st := s.stateForHandle(sess.Handle)
				if st == nil {
					return
				}
				s.removeSubscriber(st)
				if s.callbacks.OnDisconnected != nil {
					s.callbacks.OnDisconnected(st.sub, session.ReasonTimeout)
				}
			})
			s.tickSubscribers(now)
		}
	}
}

func (s *Server) removeSubscriber(st *subscriberState) {
	s.subsMu.Lock()
	delete(s.byHandle, st.sub.Handle)
	if st.udpAddr != nil {
		delete(s.byAddr, st.udpAddr.String())
		s.limiters.Forget(st.udpAddr.String())
	}
	s.subsMu.Unlock()

	if st.controllers != nil {
		st.controllers.DisconnectAll()
	}
}

// tickSubscribers drives every active subscriber's adaptive
// fragment-size control loop and input-controller tick (cursor resend
// grace, spec.md §4.1/§4.10) at the fixed 1ms cadence.
func (s *Server) tickSubscribers(now time.Time) {
	s.subsMu.RLock()
	states := make([]*subscriberState, 0, len(s.byHandle))
	for _, st := range s.byHandle {
		states = append(states, st)
	}
	s.subsMu.RUnlock()

	for _, st := range states {
		if st.adaptive != nil {
			st.adaptive.Tick(now)
		}
		if st.controllers != nil {
			st.controllers.TickAll()
		}
	}
}

// SetCursor pushes a cursor-shape update to the subscriber identified
// by handle, for hosts that drive cursor replication from outside the
// input-event path (spec.md §4.10).
func (s *Server) SetCursor(handle uint64, c input.CursorState) error {
	st := s.stateForHandle(handle)
	if st == nil {
		return fmt.Errorf("transport/server: no subscriber for handle %d", handle)
	}
	ctrl, ok := st.controllers.Get("/mouse")
	if !ok {
		return fmt.Errorf("transport/server: subscriber %d has no mouse controller", handle)
	}
	mouse, ok := ctrl.(*input.MouseController)
	if !ok {
		return fmt.Errorf("transport/server: controller %q is not a mouse controller", "/mouse")
	}
	mouse.SetCursor(c)
	return nil
}

func (s *Server) udpReceiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				log.Warn("udp read error", "err", err)
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleUDPDatagram(addr, data)
	}
}

func (s *Server) handleUDPDatagram(addr *net.UDPAddr, data []byte) {
	h, payload, err := wire.Decode(data)
	if err != nil {
		log.Debug("dropping undecodable fragment", "addr", addr, "err", err)
		return
	}

	st := s.subscriberForAddr(addr)
	var handle uint64
	if st != nil {
		handle = st.sub.Handle
	}

	full, complete := s.reasm.Add(handle, h, payload)
	if !complete {
		return
	}

	if st != nil {
		st.sub.Touch()
		st.sub.AddReceived(h.Channel, len(full))
		if c := st.sub.Cipher(); c != nil {
			if plain, derr := c.Decrypt(full); derr == nil {
				full = plain
			} else {
				log.Warn("decrypt failed, dropping message", "handle", handle, "err", derr)
				return
			}
		}
	}

	s.dispatchMessage(addr, st, h.Channel, full)
}

func (s *Server) subscriberForAddr(addr *net.UDPAddr) *subscriberState {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return s.byAddr[addr.String()]
}

// forceIDRCoalescerFor lazily creates the per-stream coalescing window
// used to collapse a burst of force-key-frame requests into one
// upstream call (spec.md §4.3, SPEC_FULL §12).
func (s *Server) forceIDRCoalescerFor(streamID int32) *rtcpsignal.ForceIDRCoalescer {
	s.forceIDRMu.Lock()
	defer s.forceIDRMu.Unlock()
	c, ok := s.forceIDR[streamID]
	if !ok {
		window := s.cfg.ForceIDRCoalesceWindow
		if window <= 0 {
			window = 500 * time.Millisecond
		}
		c = rtcpsignal.NewForceIDRCoalescer(window)
		s.forceIDR[streamID] = c
	}
	return c
}

func (s *Server) acceptTCPLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				log.Warn("tcp accept error", "err", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.serveTCPConn(conn)
	}
}

func (s *Server) serveTCPConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	framer := protocol.NewTCPFramer(conn)
	for {
		h, payload, err := framer.Recv()
		if err != nil {
			return
		}

		st := s.subscriberForAddr(tcpPseudoAddr(conn))
		if st != nil {
			if c := st.sub.Cipher(); c != nil {
				plain, derr := c.Decrypt(payload)
				if derr != nil {
					log.Warn("tcp decrypt failed", "err", derr)
					continue
				}
				payload = plain
			}
		}
		s.dispatchMessage(tcpPseudoAddr(conn), st, h.Channel, payload)
	}
}

// tcpPseudoAddr adapts a TCP conn's remote address to the *net.UDPAddr
// key used for subscriber lookup; only the string form is ever used as
// a map key, so the port/IP split doesn't need to be meaningful beyond
// that.
func tcpPseudoAddr(conn net.Conn) *net.UDPAddr {
	host, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return &net.UDPAddr{}
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return &net.UDPAddr{IP: net.ParseIP(host), Port: p}
}

