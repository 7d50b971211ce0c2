package server

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/dispatcher"
	"github.com/deskstream/streamcore/internal/streaming/input"
	"github.com/deskstream/streamcore/internal/streaming/protocol"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

const (
	defaultRetransmitMaxAge   = 2 * time.Second
	defaultRetransmitMaxBytes = 4 << 20
)

func newDefaultAdaptive(cfg Config, onChange func(int)) *protocol.AdaptiveFragmentSize {
	interval := cfg.DatagramInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	lostThreshold := cfg.LostMsgThreshold
	if lostThreshold <= 0 {
		lostThreshold = 10
	}
	turningPoint := cfg.TurningPointThreshold
	if turningPoint <= 0 {
		turningPoint = 20
	}
	ceiling := cfg.MaxFragmentSizeCeiling
	if ceiling <= 0 {
		ceiling = 65507
	}
	floor := cfg.MaxFragmentSizeFloor
	if floor <= 0 {
		floor = wire.HeaderSize + 256
	}
	return protocol.NewAdaptiveFragmentSize(ceiling, floor, interval, lostThreshold, turningPoint, onChange)
}

func newDefaultRetransmitCache() *protocol.RetransmitCache {
	return protocol.NewRetransmitCache(defaultRetransmitMaxAge, defaultRetransmitMaxBytes)
}

// SendFrame walks every subscriber currently subscribed to streamID
// and, per spec.md §4.3's init-gating rule, either sends the frame (if
// the subscriber's last-acked InitID matches initID) or resends the
// init block in its place — never both.
func (s *Server) SendFrame(streamID int32, initID int64, initBlock *dispatcher.InitBlock, ch wire.Channel, payload []byte) {
	s.subsMu.RLock()
	targets := make([]*subscriberState, 0, len(s.byHandle))
	for _, st := range s.byHandle {
		if st.sub.State() == session.StateActive && st.sub.IsSubscribed(streamID) {
			targets = append(targets, st)
		}
	}
	s.subsMu.RUnlock()

	for _, st := range targets {
		acked, ok := st.sub.LastAckedInitID(streamID)
		if !ok || acked != initID {
			if initBlock != nil {
				s.sendToSubscriber(st, ch, initBlock.Data)
			}
			continue
		}
		s.sendToSubscriber(st, ch, payload)
	}
}

// AckInit records that a subscriber has caught up to initID for
// streamID — called once the client's ACK for an init block is
// observed on the service channel.
func (s *Server) AckInit(handle uint64, streamID int32, initID int64) {
	st := s.stateForHandle(handle)
	if st == nil {
		return
	}
	st.sub.AckInitID(streamID, initID)
	st.sub.SetWaitingForIDR(false)
}

func (s *Server) sendToSubscriber(st *subscriberState, ch wire.Channel, payload []byte) {
	st.sendMu.Lock()
	defer st.sendMu.Unlock()

	if c := st.sub.Cipher(); c != nil {
		enc, err := c.Encrypt(nil, payload)
		if err != nil {
			log.Warn("encrypt failed, dropping outbound message", "handle", st.sub.Handle, "err", err)
			return
		}
		payload = enc
	}

	fragSize := st.adaptive.Current()
	msgID := st.nextMsgID(ch)
	frames, err := protocol.Fragment(ch, msgID, payload, fragSize)
	if err != nil {
		log.Warn("fragment failed", "handle", st.sub.Handle, "err", err)
		return
	}

	for i, frame := range frames {
		if st.udpAddr != nil {
			if _, err := s.udpConn.WriteToUDP(frame, st.udpAddr); err != nil {
				st.adaptive.RecordLoss()
				log.Debug("udp write failed", "handle", st.sub.Handle, "fragment", i, "err", err)
				continue
			}
		}
		st.retransmit.Put(msgID, uint16(i), frame)
		st.sub.AddSent(ch, len(frame))
	}
}

// announceFragmentSize notifies a subscriber that AdaptiveFragmentSize
// changed the outbound fragment ceiling (spec.md §4.1's
// FRAGMENT_SIZE_CHANGE), driven by AdaptiveFragmentSize.Tick from
// Server.tickLoop.
func (s *Server) announceFragmentSize(st *subscriberState, newSize int) {
	body := make([]byte, 1+4)
	body[0] = byte(wire.OpFragmentSizeChange)
	binary.BigEndian.PutUint32(body[1:], uint32(newSize))
	s.sendToSubscriber(st, wire.ChannelService, body)
}

// sendCursorUpdate pushes the mouse controller's current cursor shape
// to the client on the sensors-out channel (spec.md §4.10).
func (s *Server) sendCursorUpdate(st *subscriberState, c input.CursorState) {
	body, err := input.EncodeEvents([]input.EventEntry{
		{ID: "/mouse/out/cursor", Value: input.EventValue{Type: input.ValueInterface, Iface: c}},
	})
	if err != nil {
		log.Warn("encode cursor update failed", "handle", st.sub.Handle, "err", err)
		return
	}
	s.sendToSubscriber(st, wire.ChannelSensorsOut, body)
}

func (s *Server) sendRawTo(addr *net.UDPAddr, ch wire.Channel, payload []byte) {
	frames, err := protocol.Fragment(ch, 1, payload, 65507)
	if err != nil {
		log.Warn("fragment failed for raw send", "err", err)
		return
	}
	for _, frame := range frames {
		if _, err := s.udpConn.WriteToUDP(frame, addr); err != nil {
			log.Debug("udp write failed for raw send", "err", err)
		}
	}
}
