package input

import (
	"encoding/json"
	"fmt"
)

// Ticker is implemented by controllers that need per-tick work (e.g.
// MouseController's cursor resend grace counter). Manager.TickAll
// drives every registered controller that implements it.
type Ticker interface {
	Tick()
}

// TickAll calls Tick on every registered controller that implements
// Ticker, once per call — intended to be driven at the fixed 1ms
// session cadence (spec.md §5).
func (m *Manager) TickAll() {
	m.mu.RLock()
	tickers := make([]Ticker, 0, len(m.controllers))
	for _, c := range m.controllers {
		if t, ok := c.(Ticker); ok {
			tickers = append(tickers, t)
		}
	}
	m.mu.RUnlock()

	for _, t := range tickers {
		t.Tick()
	}
}

// wireValue is the JSON shape of one EventValue, matching spec.md §6's
// "{id, value:{type, v}, flags}" controller-event entry.
type wireValue struct {
	Type ValueType `json:"type"`
	V    any       `json:"v"`
}

// EventEntry is one controller-event wire entry.
type EventEntry struct {
	ID    string
	Value EventValue
	Flags uint32
}

type wireEntry struct {
	ID    string    `json:"id"`
	Value wireValue `json:"value"`
	Flags uint32    `json:"flags"`
}

func toWireValue(v EventValue) wireValue {
	switch v.Type {
	case ValueBool:
		return wireValue{Type: v.Type, V: v.Bool}
	case ValueInt64:
		return wireValue{Type: v.Type, V: v.Int64}
	case ValueFloat:
		return wireValue{Type: v.Type, V: v.Float}
	case ValueFloatPoint2D:
		return wireValue{Type: v.Type, V: v.Point2D}
	case ValueFloatPoint3D:
		return wireValue{Type: v.Type, V: v.Point3D}
	case ValueInterface:
		return wireValue{Type: v.Type, V: v.Iface}
	default:
		return wireValue{Type: ValueEmpty}
	}
}

func fromWireValue(w wireValue) (EventValue, error) {
	raw, err := json.Marshal(w.V)
	if err != nil {
		return EventValue{}, fmt.Errorf("input: marshal wire value: %w", err)
	}
	v := EventValue{Type: w.Type}
	switch w.Type {
	case ValueBool:
		err = json.Unmarshal(raw, &v.Bool)
	case ValueInt64:
		err = json.Unmarshal(raw, &v.Int64)
	case ValueFloat:
		err = json.Unmarshal(raw, &v.Float)
	case ValueFloatPoint2D:
		err = json.Unmarshal(raw, &v.Point2D)
	case ValueFloatPoint3D:
		err = json.Unmarshal(raw, &v.Point3D)
	case ValueInterface:
		v.Iface = w.V
	case ValueEmpty:
	default:
		return EventValue{}, fmt.Errorf("input: unknown wire value type %d", w.Type)
	}
	if err != nil {
		return EventValue{}, fmt.Errorf("input: decode wire value: %w", err)
	}
	return v, nil
}

// EncodeEvents marshals a batch of controller events as the JSON array
// spec.md §6 carries on SENSORS_IN/SENSORS_OUT.
func EncodeEvents(entries []EventEntry) ([]byte, error) {
	out := make([]wireEntry, len(entries))
	for i, e := range entries {
		out[i] = wireEntry{ID: e.ID, Value: toWireValue(e.Value), Flags: e.Flags}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("input: encode events: %w", err)
	}
	return body, nil
}

// DecodeEvents parses a SENSORS_IN/SENSORS_OUT JSON array payload.
func DecodeEvents(payload []byte) ([]EventEntry, error) {
	var in []wireEntry
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("input: decode events: %w", err)
	}
	out := make([]EventEntry, len(in))
	for i, e := range in {
		v, err := fromWireValue(e.Value)
		if err != nil {
			return nil, err
		}
		out[i] = EventEntry{ID: e.ID, Value: v, Flags: e.Flags}
	}
	return out, nil
}
