package openh264

import "testing"

func TestSubframeTypeOfClassifiesNALUnitType(t *testing.T) {
	cases := []struct {
		name string
		nal  []byte
		want string
	}{
		{"idr", []byte{0x65, 0x00}, "IDR"},
		{"non-idr-slice", []byte{0x41, 0x00}, "P"},
		{"sps-falls-back-to-I", []byte{0x67, 0x00}, "I"},
		{"empty", nil, "Unknown"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := subframeTypeOf(c.nal).String(); got != c.want {
				t.Fatalf("subframeTypeOf(%v) = %s, want %s", c.nal, got, c.want)
			}
		})
	}
}
