package input

import "sync"

// CursorUpdateCounterMax is how many ticks after any cursor change the
// cursor state keeps being resent, so it survives a single lost packet
// (spec.md §4.10).
const CursorUpdateCounterMax = 3

// CursorState is the replicated mouse cursor: bitmap, hotspot and type
// tag (spec.md §3).
type CursorState struct {
	Bitmap  []byte
	Hotspot Point2D
	Type    string
}

// MouseController replicates cursor state server→client on a
// three-tick grace policy, and tracks position for "/in/pos" events.
type MouseController struct {
	deviceID string

	mu             sync.Mutex
	position       Point2D
	cursor         CursorState
	resendCounter  int
	onCursorChange func(CursorState)
}

func NewMouseController(deviceID string, onCursorChange func(CursorState)) *MouseController {
	return &MouseController{deviceID: deviceID, onCursorChange: onCursorChange}
}

func (m *MouseController) ID() string { return m.deviceID }

func (m *MouseController) ProcessInputEvent(eventPath string, value EventValue) error {
	switch eventPath {
	case "/in/pos":
		m.mu.Lock()
		m.position = value.Point2D
		m.mu.Unlock()
	}
	return nil
}

// SetCursor updates the cursor and arms the resend grace counter.
func (m *MouseController) SetCursor(c CursorState) {
	m.mu.Lock()
	m.cursor = c
	m.resendCounter = CursorUpdateCounterMax
	m.mu.Unlock()
}

// Tick is called once per server tick; while the grace counter is
// positive it re-sends the current cursor and decrements the counter.
func (m *MouseController) Tick() {
	m.mu.Lock()
	if m.resendCounter <= 0 {
		m.mu.Unlock()
		return
	}
	m.resendCounter--
	cursor := m.cursor
	m.mu.Unlock()

	if m.onCursorChange != nil {
		m.onCursorChange(cursor)
	}
}

func (m *MouseController) Position() Point2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MouseController) Disconnect() {}

var _ Controller = (*MouseController)(nil)
