// Package client implements the streaming core's client transport:
// connect handshake, subscribe/unsubscribe, receive dispatch by
// channel, the periodic turnaround-latency sender, and the
// frame-number watchdog that requests a key frame after a persistent
// sequence gap (spec.md §4.4).
package client

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/cipher"
	"github.com/deskstream/streamcore/internal/streaming/coreerr"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
	"github.com/deskstream/streamcore/internal/streaming/protocol"
	"github.com/deskstream/streamcore/internal/streaming/rtcpsignal"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

var log = logging.L("transport/client")

// DefaultTurnaroundInterval is the server-measured round-trip latency
// probe cadence (spec.md §4.4).
const DefaultTurnaroundInterval = 16 * time.Millisecond

// Config bundles the client transport's tunables.
type Config struct {
	ServerAddr        string
	DeviceID          string
	CipherPassphrase  string
	CipherSalt        string
	TurnaroundInterval time.Duration
}

// Handlers are the application hooks invoked by the client's receive
// dispatch (spec.md §4.4).
type Handlers struct {
	OnVideoFrame      func(f pipeline.Frame)
	OnAudioFrame      func(f pipeline.Frame)
	OnVideoInit       func(m wire.VideoInitMessage)
	OnAudioInit       func(m wire.AudioInitMessage)
	OnInputEvent      func(payload []byte)
	OnSensorEvent     func(payload []byte)
	OnStats           func(payload []byte)
	OnRequestKeyFrame func(streamID int32) // called by the watchdog; app sends OpForceIDR
}

// Client is one connection to a streaming server.
type Client struct {
	cfg      Config
	handlers Handlers

	conn     *net.UDPConn
	session  *session.Session
	cipher   *cipher.PSKCipher
	reasm    *protocol.Reassembler

	framerMu sync.Mutex
	msgIDs   map[wire.Channel]uint32

	watchdogs *watchdogSet

	streamsMu         sync.Mutex
	subscribedStreams map[int32]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, handlers Handlers) *Client {
	if cfg.TurnaroundInterval <= 0 {
		cfg.TurnaroundInterval = DefaultTurnaroundInterval
	}
	return &Client{
		cfg:               cfg,
		handlers:          handlers,
		msgIDs:            make(map[wire.Channel]uint32),
		watchdogs:         newWatchdogSet(),
		subscribedStreams: make(map[int32]struct{}),
		stopCh:            make(chan struct{}),
	}
}

// Connect sends HELLO, waits for the accept/refuse reply, and on
// acceptance starts the receive-dispatch and turnaround-latency
// goroutines.
func (c *Client) Connect() error {
	addr, err := net.ResolveUDPAddr("udp", c.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("transport/client: resolve server addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("transport/client: dial: %w", err)
	}
	c.conn = conn
	c.reasm = protocol.NewReassembler(protocol.DefaultReassemblyWindow, protocol.DefaultMaxInFlightMessages)

	if c.cfg.CipherPassphrase != "" {
		c.cipher = cipher.New(c.cfg.CipherPassphrase, c.cfg.CipherSalt)
	}

	if err := c.sendService(wire.OpHello, []byte(c.cfg.DeviceID)); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrTimeout, err)
	}
	conn.SetReadDeadline(time.Time{})

	_, payload, err := wire.Decode(buf[:n])
	if err != nil || len(payload) == 0 {
		return fmt.Errorf("transport/client: malformed handshake reply")
	}
	if wire.Opcode(payload[0]) == wire.OpHelloRefused {
		return coreerr.ErrConnectionRefused
	}
	if wire.Opcode(payload[0]) != wire.OpHelloOK {
		return fmt.Errorf("transport/client: unexpected handshake reply opcode %v", wire.Opcode(payload[0]))
	}

	c.session = session.New(0, addr.String(), "", session.RoleViewer)
	c.session.Handshake()
	c.session.Activate()

	c.wg.Add(2)
	go c.receiveLoop()
	go c.turnaroundLoop()

	return nil
}

// Close stops the background goroutines and closes the socket.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.conn != nil {
			c.conn.Close()
		}
	})
	c.wg.Wait()
	if c.session != nil {
		c.session.Terminate()
	}
	return nil
}

// Subscribe asks the server to start sending frames for streamID and
// remembers it for re-subscription on reconnect.
func (c *Client) Subscribe(streamID int32) error {
	c.streamsMu.Lock()
	c.subscribedStreams[streamID] = struct{}{}
	c.streamsMu.Unlock()

	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(streamID))
	return c.sendService(wire.OpSubscribe, body)
}

func (c *Client) Unsubscribe(streamID int32) error {
	c.streamsMu.Lock()
	delete(c.subscribedStreams, streamID)
	c.streamsMu.Unlock()

	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(streamID))
	return c.sendService(wire.OpUnsubscribe, body)
}

// SubscribedStreamIDs returns the streams currently subscribed on this
// Client. The set is kept across Connect calls, for re-subscription
// after a reconnect.
func (c *Client) SubscribedStreamIDs() []int32 {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	out := make([]int32, 0, len(c.subscribedStreams))
	for id := range c.subscribedStreams {
		out = append(out, id)
	}
	return out
}

// RequestKeyFrame sends an RTCP-framed force-key-frame request for
// streamID on the service channel (spec.md §4.4's watchdog action).
func (c *Client) RequestKeyFrame(streamID int32) error {
	rtcpBuf, err := rtcpsignal.EncodeForceIDR(0, uint32(streamID))
	if err != nil {
		return fmt.Errorf("transport/client: encode force-idr: %w", err)
	}
	body := make([]byte, 4+len(rtcpBuf))
	binary.BigEndian.PutUint32(body[:4], uint32(streamID))
	copy(body[4:], rtcpBuf)
	return c.sendService(wire.OpForceIDR, body)
}

func (c *Client) nextMsgID(ch wire.Channel) uint32 {
	c.framerMu.Lock()
	defer c.framerMu.Unlock()
	c.msgIDs[ch]++
	return c.msgIDs[ch]
}

func (c *Client) sendService(op wire.Opcode, body []byte) error {
	payload := append([]byte{byte(op)}, body...)
	if c.cipher != nil {
		enc, err := c.cipher.Encrypt(nil, payload)
		if err != nil {
			return fmt.Errorf("transport/client: encrypt: %w", err)
		}
		payload = enc
	}
	h := wire.Header{
		Version: wire.ProtocolVersion,
		Channel: wire.ChannelService,
		MsgID:   c.nextMsgID(wire.ChannelService),
		FragIdx: 0,
		FragCnt: 1,
		Flags:   wire.FlagLastFragment,
	}
	_, err := c.conn.Write(wire.Encode(h, payload))
	return err
}

func (c *Client) turnaroundLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TurnaroundInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-t.C:
			body := make([]byte, 8)
			binary.BigEndian.PutUint64(body, uint64(now.UnixNano()))
			if err := c.sendService(wire.OpTurnaroundLatency, body); err != nil {
				log.Debug("turnaround send failed", "err", err)
			}
		}
	}
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
				log.Debug("receive loop read error", "err", err)
				return
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.handleDatagram(data)
	}
}

func (c *Client) handleDatagram(data []byte) {
	h, payload, err := wire.Decode(data)
	if err != nil {
		log.Debug("dropping undecodable datagram", "err", err)
		return
	}
	if c.session != nil {
		c.session.Touch()
	}

	full, complete := c.reasm.Add(0, h, payload)
	if !complete {
		return
	}

	if c.cipher != nil {
		plain, derr := c.cipher.Decrypt(full)
		if derr != nil {
			log.Warn("decrypt failed", "err", derr)
			return
		}
		full = plain
	}

	switch h.Channel {
	case wire.ChannelVideoOut, wire.ChannelAudioOut:
		c.handleMediaFrame(h, full)
	case wire.ChannelService:
		c.handleServiceFrame(full)
	case wire.ChannelSensorsOut:
		if c.handlers.OnSensorEvent != nil {
			c.handlers.OnSensorEvent(full)
		}
	}
}

func (c *Client) handleMediaFrame(h wire.Header, payload []byte) {
	kind, err := wire.PeekMediaKind(payload)
	if err != nil {
		log.Debug("dropping unparseable media payload", "err", err)
		return
	}

	switch kind {
	case wire.MediaKindVideoInit:
		m, err := wire.DecodeVideoInit(payload)
		if err != nil {
			log.Warn("decode video init failed", "err", err)
			return
		}
		if c.handlers.OnVideoInit != nil {
			c.handlers.OnVideoInit(m)
		}
		return
	case wire.MediaKindAudioInit:
		m, err := wire.DecodeAudioInit(payload)
		if err != nil {
			log.Warn("decode audio init failed", "err", err)
			return
		}
		if c.handlers.OnAudioInit != nil {
			c.handlers.OnAudioInit(m)
		}
		return
	}

	mh, body, err := wire.DecodeMediaFrame(payload)
	if err != nil {
		log.Warn("decode media frame failed", "err", err)
		return
	}

	wd := c.watchdogs.forStream(mh.StreamID)
	if wd.Observe(mh.SequenceNumber, time.Now()) && c.handlers.OnRequestKeyFrame != nil {
		c.handlers.OnRequestKeyFrame(mh.StreamID)
	}

	f := pipeline.Frame{
		StreamID:        mh.StreamID,
		Pts:             mh.Pts,
		SequenceNumber:  mh.SequenceNumber,
		OriginPts:       mh.OriginPts,
		Discontinuity:   mh.Discontinuity,
		ColorRangeFull:  mh.ColorRangeFull,
		ClientTimestamp: time.Now().UnixMicro(),
		Subframes:       []pipeline.Subframe{{Type: pipeline.SubframeUnknown, Data: body}},
	}

	switch h.Channel {
	case wire.ChannelVideoOut:
		if c.handlers.OnVideoFrame != nil {
			c.handlers.OnVideoFrame(f)
		}
	case wire.ChannelAudioOut:
		if c.handlers.OnAudioFrame != nil {
			c.handlers.OnAudioFrame(f)
		}
	}
}

func (c *Client) handleServiceFrame(payload []byte) {
	if len(payload) == 0 {
		return
	}
	op := wire.Opcode(payload[0])
	body := payload[1:]
	switch op {
	case wire.OpStats, wire.OpServerStat:
		if c.handlers.OnStats != nil {
			c.handlers.OnStats(body)
		}
	}
}
