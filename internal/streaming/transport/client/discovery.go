package client

import (
	"fmt"
	"net"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// Decision is the caller's verdict after being shown one discovered
// server (spec.md §4.4).
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionAbort
)

// ServerInfo is what a DISCOVERY reply tells the caller about one
// responding server.
type ServerInfo struct {
	Addr *net.UDPAddr
}

// Discover broadcasts a DISCOVERY datagram carrying deviceID on
// broadcastAddr (e.g. "255.255.255.255:7000") and invokes onFound for
// every HelloOK reply received before timeout elapses or onFound
// returns DecisionAbort. HelloRefused and other replies are skipped.
func Discover(broadcastAddr, deviceID string, timeout time.Duration, onFound func(ServerInfo) Decision) error {
	addr, err := net.ResolveUDPAddr("udp", broadcastAddr)
	if err != nil {
		return fmt.Errorf("transport/client: resolve broadcast addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("transport/client: listen for discovery replies: %w", err)
	}
	defer conn.Close()

	payload := append([]byte{byte(wire.OpDiscovery)}, []byte(deviceID)...)
	h := wire.Header{Version: wire.ProtocolVersion, Channel: wire.ChannelService, MsgID: 1, FragIdx: 0, FragCnt: 1, Flags: wire.FlagLastFragment}
	if _, err := conn.WriteToUDP(wire.Encode(h, payload), addr); err != nil {
		return fmt.Errorf("transport/client: send discovery: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 2048)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil // timeout: discovery window closed quietly
		}
		_, respPayload, err := wire.Decode(buf[:n])
		if err != nil || len(respPayload) == 0 {
			continue
		}
		if wire.Opcode(respPayload[0]) != wire.OpHelloOK {
			continue
		}
		if onFound(ServerInfo{Addr: from}) == DecisionAbort {
			return nil
		}
	}
}
