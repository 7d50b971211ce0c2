package input

import "sync"

// KeyboardController tracks the held-key set so that on disconnect
// every pressed key can be released in a separate pass (spec.md
// §4.10).
type KeyboardController struct {
	deviceID string

	mu      sync.Mutex
	held    map[int64]bool
	onEvent func(keyCode int64, down bool)
}

func NewKeyboardController(deviceID string, onEvent func(keyCode int64, down bool)) *KeyboardController {
	return &KeyboardController{
		deviceID: deviceID,
		held:     make(map[int64]bool),
		onEvent:  onEvent,
	}
}

func (k *KeyboardController) ID() string { return k.deviceID }

func (k *KeyboardController) ProcessInputEvent(eventPath string, value EventValue) error {
	if eventPath != "/in/key" {
		return nil
	}
	keyCode := value.Int64
	down := value.Bool

	k.mu.Lock()
	if down {
		k.held[keyCode] = true
	} else {
		delete(k.held, keyCode)
	}
	k.mu.Unlock()

	if k.onEvent != nil {
		k.onEvent(keyCode, down)
	}
	return nil
}

// HeldKeys returns a snapshot of currently pressed key codes.
func (k *KeyboardController) HeldKeys() []int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]int64, 0, len(k.held))
	for code := range k.held {
		out = append(out, code)
	}
	return out
}

// Disconnect releases every held key in a separate pass, so the OS
// input-injection layer never sees a stuck key after the peer drops.
func (k *KeyboardController) Disconnect() {
	k.mu.Lock()
	held := make([]int64, 0, len(k.held))
	for code := range k.held {
		held = append(held, code)
	}
	k.held = make(map[int64]bool)
	k.mu.Unlock()

	for _, code := range held {
		if k.onEvent != nil {
			k.onEvent(code, false)
		}
	}
}

var _ Controller = (*KeyboardController)(nil)
