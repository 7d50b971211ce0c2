// Package input implements the input controller layer: hierarchical
// controlID routing, typed event values, and a central ControllerManager
// dispatching events to per-device controllers (spec.md §4.10).
package input

import (
	"fmt"
	"strings"
	"sync"

	"github.com/deskstream/streamcore/internal/logging"
)

var log = logging.L("input")

// ValueType tags the shape of an EventValue's payload.
type ValueType int

const (
	ValueEmpty ValueType = iota
	ValueBool
	ValueInt64
	ValueFloat
	ValueFloatPoint2D
	ValueFloatPoint3D
	ValueInterface
)

// Point2D and Point3D are the payloads for the matching ValueType.
type Point2D struct{ X, Y float64 }
type Point3D struct{ X, Y, Z float64 }

// EventValue is a typed input/output event payload. Exactly one of the
// typed fields is meaningful, selected by Type.
type EventValue struct {
	Type    ValueType
	Bool    bool
	Int64   int64
	Float   float64
	Point2D Point2D
	Point3D Point3D
	Iface   any
}

// EventTable maps known event paths (e.g. "/in/pos") to their declared
// ValueType; ValueTypeFor reports ValueEmpty for paths absent from it.
// DecodeEvents does not consult the table: each decoded entry keeps the
// type carried in its own wire encoding.
var EventTable = map[string]ValueType{
	"/in/pos":        ValueFloatPoint2D,
	"/in/wheel":      ValueFloat,
	"/in/button":     ValueBool,
	"/in/key":        ValueBool,
	"/in/axis":       ValueFloat,
	"/in/stick":      ValueFloatPoint2D,
	"/in/trigger":    ValueFloat,
	"/in/touch":      ValueFloatPoint2D,
	"/in/pose":       ValueFloatPoint3D,
	"/out/cursor":    ValueInterface,
	"/out/haptic":    ValueFloat,
}

// ValueTypeFor looks up the declared type for an event path, defaulting
// to ValueEmpty for unknown paths.
func ValueTypeFor(eventPath string) ValueType {
	if t, ok := EventTable[eventPath]; ok {
		return t
	}
	return ValueEmpty
}

// Controller is one logical input/output device (mouse, keyboard, a
// game controller, a touchscreen, …), addressed by a single-segment
// device ID such as "/mouse" or "/gamepad"; a slot index travels in the
// event path ("/gamepad/0/in/axis" routes to "/gamepad" with event
// "/0/in/axis").
type Controller interface {
	ID() string
	ProcessInputEvent(eventPath string, value EventValue) error
	// Disconnect is called when the owning session disconnects so the
	// controller can release any latched state (e.g. held keys).
	Disconnect()
}

// SplitControlID splits a hierarchical control ID such as
// "/mouse/in/pos" into its device ID ("/mouse") and event path
// ("/in/pos") — the path is split at the first '/' after index 0.
func SplitControlID(path string) (device, event string, err error) {
	if len(path) == 0 || path[0] != '/' {
		return "", "", fmt.Errorf("input: control ID %q must start with '/'", path)
	}
	idx := strings.IndexByte(path[1:], '/')
	if idx < 0 {
		return "", "", fmt.Errorf("input: control ID %q has no event component", path)
	}
	return path[:idx+1], path[idx+1:], nil
}

// Manager holds a flat collection of controllers on one side (server
// or client) and dispatches inbound events by splitting the control ID
// and routing to the matching controller.
type Manager struct {
	mu          sync.RWMutex
	controllers map[string]Controller
}

func NewManager() *Manager {
	return &Manager{controllers: make(map[string]Controller)}
}

func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllers[c.ID()] = c
}

func (m *Manager) Unregister(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, deviceID)
}

func (m *Manager) Get(deviceID string) (Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[deviceID]
	return c, ok
}

// Dispatch routes one event addressed by a full hierarchical control
// ID to its controller.
func (m *Manager) Dispatch(controlID string, value EventValue) error {
	device, event, err := SplitControlID(controlID)
	if err != nil {
		return err
	}
	c, ok := m.Get(device)
	if !ok {
		log.Warn("input event for unknown controller", "device", device)
		return fmt.Errorf("input: no controller registered for device %q", device)
	}
	return c.ProcessInputEvent(event, value)
}

// DisconnectAll calls Disconnect on every registered controller, for
// use when a session tears down (spec.md §4.10's keyboard release
// pass generalizes to every controller type).
func (m *Manager) DisconnectAll() {
	m.mu.RLock()
	controllers := make([]Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	for _, c := range controllers {
		c.Disconnect()
	}
}
