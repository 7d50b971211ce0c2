package protocol

import (
	"fmt"

	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// Fragment splits payload into one or more wire frames no larger than
// maxFragmentSize (header included), each carrying msgID and an
// incrementing fragment index, the last one flagged FlagLastFragment.
func Fragment(ch wire.Channel, msgID uint32, payload []byte, maxFragmentSize int) ([][]byte, error) {
	if maxFragmentSize <= wire.HeaderSize {
		return nil, fmt.Errorf("protocol: maxFragmentSize %d too small for header of %d", maxFragmentSize, wire.HeaderSize)
	}
	chunkSize := maxFragmentSize - wire.HeaderSize

	if len(payload) == 0 {
		h := wire.Header{Version: wire.ProtocolVersion, Channel: ch, MsgID: msgID, FragIdx: 0, FragCnt: 1, Flags: wire.FlagLastFragment}
		return [][]byte{wire.Encode(h, nil)}, nil
	}

	fragCnt := (len(payload) + chunkSize - 1) / chunkSize
	if fragCnt > 1<<16-1 {
		return nil, fmt.Errorf("protocol: message requires %d fragments, exceeds uint16 fragment count", fragCnt)
	}

	frames := make([][]byte, 0, fragCnt)
	for i := 0; i < fragCnt; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		var flags uint16
		if i == fragCnt-1 {
			flags = wire.FlagLastFragment
		}
		h := wire.Header{
			Version: wire.ProtocolVersion,
			Channel: ch,
			MsgID:   msgID,
			FragIdx: uint16(i),
			FragCnt: uint16(fragCnt),
			Flags:   flags,
		}
		frames = append(frames, wire.Encode(h, payload[start:end]))
	}
	return frames, nil
}
