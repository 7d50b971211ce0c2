package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// MaxTCPMessageSize bounds a single length-prefixed message so a
// corrupt or hostile peer can't force an unbounded allocation.
const MaxTCPMessageSize = 16 << 20

// TCPFramer drives the flow-control protocol's TCP/websocket variant:
// the fragment header plus payload is written as
// [4-byte BE length][header][payload] on a single net.Conn, guaranteeing
// exactly one fragment per message (spec.md §4.1 "Over TCP..."). A
// per-channel monotonic message ID is enforced on receive, mirroring
// the sequence-number check in the length-prefixed IPC framer this is
// grounded on.
type TCPFramer struct {
	conn net.Conn

	writeMu sync.Mutex
	sendSeq atomic.Uint32

	recvSeq map[wire.Channel]uint32
	recvMu  sync.Mutex
}

func NewTCPFramer(conn net.Conn) *TCPFramer {
	return &TCPFramer{
		conn:    conn,
		recvSeq: make(map[wire.Channel]uint32),
	}
}

// Send writes one complete message (always a single fragment, per the
// TCP framing contract) and returns the message ID assigned.
func (f *TCPFramer) Send(ch wire.Channel, payload []byte) (uint32, error) {
	msgID := f.sendSeq.Add(1)
	h := wire.Header{
		Version: wire.ProtocolVersion,
		Channel: ch,
		MsgID:   msgID,
		FragIdx: 0,
		FragCnt: 1,
		Flags:   wire.FlagLastFragment,
	}
	frame := wire.Encode(h, payload)

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(frame)))
	if _, err := f.conn.Write(header); err != nil {
		return 0, fmt.Errorf("protocol: write length prefix: %w", err)
	}
	if _, err := f.conn.Write(frame); err != nil {
		return 0, fmt.Errorf("protocol: write frame: %w", err)
	}
	return msgID, nil
}

// Recv reads the next complete message and returns its header and
// payload.
func (f *TCPFramer) Recv() (wire.Header, []byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(f.conn, lenBuf); err != nil {
		return wire.Header{}, nil, fmt.Errorf("protocol: read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 || length > MaxTCPMessageSize {
		return wire.Header{}, nil, fmt.Errorf("protocol: invalid frame length %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(f.conn, buf); err != nil {
		return wire.Header{}, nil, fmt.Errorf("protocol: read frame: %w", err)
	}

	h, payload, err := wire.Decode(buf)
	if err != nil {
		return wire.Header{}, nil, err
	}
	if h.FragCnt != 1 {
		return wire.Header{}, nil, fmt.Errorf("protocol: TCP framer received multi-fragment message (fragCnt=%d)", h.FragCnt)
	}

	f.recvMu.Lock()
	prev := f.recvSeq[h.Channel]
	if h.MsgID <= prev && prev > 0 {
		f.recvMu.Unlock()
		return wire.Header{}, nil, fmt.Errorf("protocol: msgID %d <= last %d on channel %s (out of order)", h.MsgID, prev, h.Channel)
	}
	f.recvSeq[h.Channel] = h.MsgID
	f.recvMu.Unlock()

	return h, payload, nil
}

func (f *TCPFramer) Close() error { return f.conn.Close() }
