package input

import "testing"

func TestEncodeDecodeEventsRoundTrip(t *testing.T) {
	entries := []EventEntry{
		{ID: "/mouse/in/pos", Value: EventValue{Type: ValueFloatPoint2D, Point2D: Point2D{X: 1.5, Y: -2.5}}, Flags: 1},
		{ID: "/keyboard/in/key", Value: EventValue{Type: ValueBool, Bool: true}},
	}

	body, err := EncodeEvents(entries)
	if err != nil {
		t.Fatalf("EncodeEvents: %v", err)
	}

	got, err := DecodeEvents(body)
	if err != nil {
		t.Fatalf("DecodeEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ID != "/mouse/in/pos" || got[0].Value.Point2D != (Point2D{X: 1.5, Y: -2.5}) || got[0].Flags != 1 {
		t.Fatalf("entry 0 = %+v", got[0])
	}
	if got[1].ID != "/keyboard/in/key" || got[1].Value.Bool != true {
		t.Fatalf("entry 1 = %+v", got[1])
	}
}

func TestManagerTickAllOnlyTicksTickers(t *testing.T) {
	m := NewManager()
	ticks := 0
	mouse := NewMouseController("/mouse", func(CursorState) { ticks++ })
	mouse.SetCursor(CursorState{Type: "arrow"})
	m.Register(mouse)
	m.Register(NewKeyboardController("/keyboard", nil))

	m.TickAll()
	m.TickAll()

	if ticks != 2 {
		t.Fatalf("ticks = %d, want 2", ticks)
	}
}
