package server

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/rtcpsignal"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

func startTestServer(t *testing.T, cb Callbacks) (*Server, *net.UDPConn) {
	t.Helper()
	srv := New(Config{
		ListenUDPAddr:     "127.0.0.1:0",
		DisconnectTimeout: time.Hour,
	}, cb)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	clientConn, err := net.DialUDP("udp", nil, srv.LocalUDPAddr())
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	return srv, clientConn
}

func sendService(t *testing.T, conn *net.UDPConn, op wire.Opcode, body []byte) {
	t.Helper()
	payload := append([]byte{byte(op)}, body...)
	h := wire.Header{Version: wire.ProtocolVersion, Channel: wire.ChannelService, MsgID: 1, FragIdx: 0, FragCnt: 1, Flags: wire.FlagLastFragment}
	if _, err := conn.Write(wire.Encode(h, payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recvService(t *testing.T, conn *net.UDPConn) (wire.Opcode, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, payload, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("empty service payload")
	}
	return wire.Opcode(payload[0]), payload[1:]
}

func TestHelloAcceptedGetsHelloOKAndConnectedCallback(t *testing.T) {
	connected := make(chan *session.Subscriber, 1)
	_, conn := startTestServer(t, Callbacks{
		OnConnected: func(s *session.Subscriber) { connected <- s },
	})

	sendService(t, conn, wire.OpHello, []byte("device-1"))

	op, _ := recvService(t, conn)
	if op != wire.OpHelloOK {
		t.Fatalf("opcode = %v, want OpHelloOK", op)
	}

	select {
	case sub := <-connected:
		if sub.State() != session.StateActive {
			t.Fatalf("subscriber state = %v, want Active", sub.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnected callback never fired")
	}
}

func TestHelloRefusedGetsHelloRefused(t *testing.T) {
	_, conn := startTestServer(t, Callbacks{
		AuthorizeConnectionRequest: func(deviceID, addr string) bool { return false },
	})

	sendService(t, conn, wire.OpHello, []byte("device-1"))

	op, _ := recvService(t, conn)
	if op != wire.OpHelloRefused {
		t.Fatalf("opcode = %v, want OpHelloRefused", op)
	}
}

func TestSubscribeFiresCallback(t *testing.T) {
	subscribed := make(chan int32, 1)
	_, conn := startTestServer(t, Callbacks{
		OnVideoStreamSubscribed: func(s *session.Subscriber, streamID int32) { subscribed <- streamID },
	})

	sendService(t, conn, wire.OpHello, []byte("device-1"))
	recvService(t, conn) // HelloOK

	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, 7)
	sendService(t, conn, wire.OpSubscribe, body)

	select {
	case streamID := <-subscribed:
		if streamID != 7 {
			t.Fatalf("streamID = %d, want 7", streamID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnVideoStreamSubscribed never fired")
	}
}

func TestForceIDRCoalescedAcrossBurst(t *testing.T) {
	var calls int
	done := make(chan struct{}, 4)
	_, conn := startTestServer(t, Callbacks{
		OnForceIDRRequest: func(streamID int32) {
			calls++
			done <- struct{}{}
		},
	})

	rtcpBuf, err := rtcpsignal.EncodeForceIDR(1, 2)
	if err != nil {
		t.Fatalf("encode PLI: %v", err)
	}

	body := make([]byte, 4+len(rtcpBuf))
	binary.BigEndian.PutUint32(body[:4], 9)
	copy(body[4:], rtcpBuf)

	for i := 0; i < 3; i++ {
		sendService(t, conn, wire.OpForceIDR, body)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnForceIDRRequest never fired")
	}
	time.Sleep(50 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (burst should coalesce)", calls)
	}
}
