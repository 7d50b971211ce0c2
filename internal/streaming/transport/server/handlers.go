package server

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/cipher"
	"github.com/deskstream/streamcore/internal/streaming/input"
	"github.com/deskstream/streamcore/internal/streaming/rtcpsignal"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// dispatchMessage routes one fully reassembled, decrypted payload by
// channel. On ChannelService it further dispatches by leading opcode
// byte (spec.md §4.3).
func (s *Server) dispatchMessage(addr *net.UDPAddr, st *subscriberState, ch wire.Channel, payload []byte) {
	switch ch {
	case wire.ChannelService:
		s.dispatchServiceMessage(addr, st, payload)
	case wire.ChannelSensorsIn:
		if st == nil {
			log.Debug("sensors-in message before handshake, dropping")
			return
		}
		s.dispatchSensorsIn(st, payload)
	default:
		if st == nil {
			log.Debug("message on non-service channel before handshake, dropping", "channel", ch)
			return
		}
		log.Debug("received message on channel with no registered application sink", "channel", ch, "handle", st.sub.Handle)
	}
}

// dispatchSensorsIn decodes a SENSORS_IN event batch and routes each
// entry to its controller (spec.md §4.10).
func (s *Server) dispatchSensorsIn(st *subscriberState, payload []byte) {
	entries, err := input.DecodeEvents(payload)
	if err != nil {
		log.Debug("malformed sensors-in payload", "handle", st.sub.Handle, "err", err)
		return
	}
	for _, e := range entries {
		if err := st.controllers.Dispatch(e.ID, e.Value); err != nil {
			log.Debug("input dispatch failed", "handle", st.sub.Handle, "controlID", e.ID, "err", err)
		}
	}
}

func (s *Server) dispatchServiceMessage(addr *net.UDPAddr, st *subscriberState, payload []byte) {
	if len(payload) == 0 {
		return
	}
	op := wire.Opcode(payload[0])
	body := payload[1:]

	switch op {
	case wire.OpDiscovery:
		s.handleDiscovery(addr, body)
	case wire.OpHello:
		s.handleHello(addr, body)
	case wire.OpSubscribe:
		s.handleSubscribe(st, body)
	case wire.OpUnsubscribe:
		s.handleUnsubscribe(st, body)
	case wire.OpForceIDR:
		s.handleForceIDR(body)
	case wire.OpNack:
		s.handleNack(st, body)
	case wire.OpBandwidthEstimate:
		s.handleBandwidthEstimate(st, body)
	case wire.OpBitrateChangeRequest:
		s.handleBitrateChangeRequest(st, body)
	case wire.OpFramerateChangeRequest:
		s.handleFramerateChangeRequest(st, body)
	case wire.OpResolutionChangeRequest:
		s.handleResolutionChangeRequest(st, body)
	case wire.OpGoodbye:
		s.handleGoodbye(st)
	default:
		log.Debug("unhandled service opcode", "opcode", op)
	}
}

// handleDiscovery implements the AuthorizeDiscoveryRequest contract:
// deviceID is carried as the remainder of the body as a UTF-8 string.
func (s *Server) handleDiscovery(addr *net.UDPAddr, body []byte) {
	if !s.limiters.AllowDiscovery(addr.String()) {
		return
	}
	deviceID := string(body)

	verdict := DiscoveryVerdict{Accept: true}
	if s.callbacks.AuthorizeDiscoveryRequest != nil {
		verdict = s.callbacks.AuthorizeDiscoveryRequest(deviceID)
	}

	var reply []byte
	if verdict.Accept {
		reply = append(reply, byte(wire.OpHelloOK))
	} else {
		reply = append(reply, byte(wire.OpHelloRefused))
	}
	s.sendRawTo(addr, wire.ChannelService, reply)
}

// handleHello implements the connect handshake: body is the UTF-8
// deviceID. A session is created for every HELLO. A refused one moves
// Handshake → Refused and is answered with HelloRefused. An accepted one
// moves Handshake → Active without waiting for a peer ACK, OnConnected
// fires, and HelloOK is sent last.
func (s *Server) handleHello(addr *net.UDPAddr, body []byte) {
	deviceID := string(body)

	accept := true
	if s.callbacks.AuthorizeConnectionRequest != nil {
		accept = s.callbacks.AuthorizeConnectionRequest(deviceID, addr.String())
	}

	sess := s.sessions.Create(addr.String(), deviceID, session.RoleViewer)
	if !accept {
		sess.Handshake()
		sess.Refuse()
		s.sendRawTo(addr, wire.ChannelService, []byte{byte(wire.OpHelloRefused)})
		return
	}

	sess.Handshake()
	sub := session.NewSubscriber(sess)

	if s.cfg.CipherPassphrase != "" {
		sub.SetCipher(cipher.New(s.cfg.CipherPassphrase, s.cfg.CipherSalt))
	}

	var st *subscriberState
	st = &subscriberState{
		sub:      sub,
		udpAddr:  addr,
		adaptive: newDefaultAdaptive(s.cfg, func(newSize int) { s.announceFragmentSize(st, newSize) }),
	}
	st.retransmit = newDefaultRetransmitCache()

	controllers := input.NewManager()
	controllers.Register(input.NewMouseController("/mouse", func(c input.CursorState) { s.sendCursorUpdate(st, c) }))
	controllers.Register(input.NewKeyboardController("/keyboard", func(keyCode int64, down bool) {
		if s.callbacks.OnInputEvent != nil {
			s.callbacks.OnInputEvent(sub, keyCode, down)
		}
	}))
	st.controllers = controllers

	s.subsMu.Lock()
	s.byAddr[addr.String()] = st
	s.byHandle[sub.Handle] = st
	s.subsMu.Unlock()

	sess.Activate()

	if s.callbacks.OnConnected != nil {
		s.callbacks.OnConnected(sub)
	}

	s.sendRawTo(addr, wire.ChannelService, []byte{byte(wire.OpHelloOK)})
}

func (s *Server) handleSubscribe(st *subscriberState, body []byte) {
	if st == nil || len(body) < 4 {
		return
	}
	streamID := int32(binary.BigEndian.Uint32(body))
	st.sub.Subscribe(streamID)
	st.sub.SetWaitingForIDR(true)
	if s.callbacks.OnVideoStreamSubscribed != nil {
		s.callbacks.OnVideoStreamSubscribed(st.sub, streamID)
	}
}

func (s *Server) handleUnsubscribe(st *subscriberState, body []byte) {
	if st == nil || len(body) < 4 {
		return
	}
	streamID := int32(binary.BigEndian.Uint32(body))
	st.sub.Unsubscribe(streamID)
	if s.callbacks.OnVideoStreamUnsubscribed != nil {
		s.callbacks.OnVideoStreamUnsubscribed(st.sub, streamID)
	}
}

// handleForceIDR decodes the RTCP-framed force-key-frame request and
// coalesces repeated requests within a short window into a single
// upstream call (spec.md §4.3's tie-break policy, SPEC_FULL §12).
func (s *Server) handleForceIDR(body []byte) {
	if len(body) < 4 {
		return
	}
	streamID := int32(binary.BigEndian.Uint32(body[:4]))
	rtcpBuf := body[4:]

	signals, err := rtcpsignal.Decode(rtcpBuf)
	if err != nil {
		log.Debug("malformed force-idr RTCP payload", "err", err)
		return
	}
	var forced bool
	for _, sig := range signals {
		if sig.Kind == rtcpsignal.KindForceIDR {
			forced = true
		}
	}
	if !forced {
		return
	}

	if !s.forceIDRCoalescerFor(streamID).Admit(time.Now()) {
		return
	}
	if s.callbacks.OnForceIDRRequest != nil {
		s.callbacks.OnForceIDRRequest(streamID)
	}
}

func (s *Server) handleNack(st *subscriberState, body []byte) {
	if st == nil || len(body) < 8 {
		return
	}
	ch := wire.Channel(body[0])
	msgID := binary.BigEndian.Uint32(body[1:5])
	fragIdx := binary.BigEndian.Uint16(body[5:7])

	if !s.limiters.AllowRetransmit(st.udpAddr.String()) {
		return
	}

	if frame, ok := st.retransmit.Get(msgID, fragIdx); ok {
		s.sendRawTo(st.udpAddr, ch, frame)
	}
	if s.callbacks.OnNack != nil {
		s.callbacks.OnNack(st.sub, ch, msgID, fragIdx)
	}
}

func (s *Server) handleBandwidthEstimate(st *subscriberState, body []byte) {
	if st == nil || len(body) < 8 {
		return
	}
	bps := binary.BigEndian.Uint64(body)
	st.sub.Stats.BandwidthEstimate.Store(bps)
	if s.callbacks.OnBandwidthEstimate != nil {
		s.callbacks.OnBandwidthEstimate(st.sub, bps)
	}
}

func (s *Server) handleBitrateChangeRequest(st *subscriberState, body []byte) {
	if st == nil || len(body) < 8 || s.callbacks.OnBitrateChangeRequest == nil {
		return
	}
	bps := int64(binary.BigEndian.Uint64(body))
	s.callbacks.OnBitrateChangeRequest(st.sub, bps)
}

func (s *Server) handleFramerateChangeRequest(st *subscriberState, body []byte) {
	if st == nil || len(body) < 4 || s.callbacks.OnFramerateChangeRequest == nil {
		return
	}
	fps := int(binary.BigEndian.Uint32(body))
	s.callbacks.OnFramerateChangeRequest(st.sub, fps)
}

func (s *Server) handleResolutionChangeRequest(st *subscriberState, body []byte) {
	if st == nil || len(body) < 8 || s.callbacks.OnResolutionChangeRequest == nil {
		return
	}
	width := int(binary.BigEndian.Uint32(body[:4]))
	height := int(binary.BigEndian.Uint32(body[4:8]))
	s.callbacks.OnResolutionChangeRequest(st.sub, width, height)
}

func (s *Server) handleGoodbye(st *subscriberState) {
	if st == nil {
		return
	}
	if st.sub.Terminate() {
		s.removeSubscriber(st)
		if s.callbacks.OnDisconnected != nil {
			s.callbacks.OnDisconnected(st.sub, session.ReasonExplicitClose)
		}
	}
}
