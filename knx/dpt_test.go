package knx

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func TestDPT1RoundTrip(t *testing.T) {
	for _, value := range []bool{true, false} {
		encoded := EncodeDPT1(value)
		if len(encoded) != 1 {
			t.Fatalf("EncodeDPT1(%v) returned %d bytes", value, len(encoded))
		}
		decoded, err := DecodeDPT1(encoded)
		if err != nil {
			t.Fatalf("DecodeDPT1 unexpected error: %v", err)
		}
		if decoded != value {
			t.Errorf("round-trip %v = %v", value, decoded)
		}
	}

	if _, err := DecodeDPT1(nil); err == nil {
		t.Error("DecodeDPT1(nil) expected error")
	}
}

func TestDPT3(t *testing.T) {
	tests := []struct {
		name     string
		increase bool
		steps    uint8
		want     byte
	}{
		{"increase 1 step", true, 1, 0x09},
		{"decrease 3 steps", false, 3, 0x03},
		{"stop", false, 0, 0x00},
		{"increase stop", true, 0, 0x08},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeDPT3(tt.increase, tt.steps)
			if encoded[0] != tt.want {
				t.Errorf("EncodeDPT3() = 0x%02X, want 0x%02X", encoded[0], tt.want)
			}

			inc, steps, err := DecodeDPT3(encoded)
			if err != nil {
				t.Fatalf("DecodeDPT3 unexpected error: %v", err)
			}
			if inc != tt.increase || steps != tt.steps {
				t.Errorf("DecodeDPT3() = (%v, %d), want (%v, %d)", inc, steps, tt.increase, tt.steps)
			}
		})
	}
}

func TestDPT5(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		want    byte
	}{
		{"0%", 0, 0x00},
		{"50%", 50, 0x80},
		{"75%", 75, 0xBF},
		{"100%", 100, 0xFF},
		{"clamped high", 150, 0xFF},
		{"clamped low", -10, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeDPT5(tt.percent)
			if encoded[0] != tt.want {
				t.Errorf("EncodeDPT5(%v) = 0x%02X, want 0x%02X", tt.percent, encoded[0], tt.want)
			}
		})
	}

	decoded, err := DecodeDPT5([]byte{0xFF})
	if err != nil {
		t.Fatalf("DecodeDPT5 unexpected error: %v", err)
	}
	if decoded != 100 {
		t.Errorf("DecodeDPT5(0xFF) = %v, want 100", decoded)
	}
}

func TestDPT9(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  []byte
	}{
		{"21.5 degrees", 21.5, []byte{0x0C, 0x33}},
		{"zero", 0, []byte{0x00, 0x00}},
		{"minus 30", -30, []byte{0x8A, 0x24}},
		{"20.48", 20.48, []byte{0x0C, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeDPT9(tt.value)
			if err != nil {
				t.Fatalf("EncodeDPT9(%v) unexpected error: %v", tt.value, err)
			}
			if !bytes.Equal(encoded, tt.want) {
				t.Errorf("EncodeDPT9(%v) = %X, want %X", tt.value, encoded, tt.want)
			}

			decoded, err := DecodeDPT9(encoded)
			if err != nil {
				t.Fatalf("DecodeDPT9 unexpected error: %v", err)
			}
			if math.Abs(decoded-tt.value) > 0.01 {
				t.Errorf("round-trip %v = %v", tt.value, decoded)
			}
		})
	}

	t.Run("out of range", func(t *testing.T) {
		if _, err := EncodeDPT9(1e9); err == nil {
			t.Error("EncodeDPT9(1e9) expected error")
		}
	})

	t.Run("invalid sentinel", func(t *testing.T) {
		if _, err := DecodeDPT9([]byte{0x7F, 0xFF}); err == nil {
			t.Error("DecodeDPT9(0x7FFF) expected error")
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := DecodeDPT9([]byte{0x0C}); err == nil {
			t.Error("DecodeDPT9 with 1 byte expected error")
		}
	})
}

func TestDPT10(t *testing.T) {
	// Tuesday 14:30:45
	at := time.Date(2025, 3, 4, 14, 30, 45, 0, time.UTC)
	encoded := EncodeDPT10(2, at)
	want := []byte{2<<5 | 14, 30, 45}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("EncodeDPT10() = %X, want %X", encoded, want)
	}

	dow, hour, minute, second, err := DecodeDPT10(encoded)
	if err != nil {
		t.Fatalf("DecodeDPT10 unexpected error: %v", err)
	}
	if dow != 2 || hour != 14 || minute != 30 || second != 45 {
		t.Errorf("DecodeDPT10() = (%d, %d:%d:%d)", dow, hour, minute, second)
	}

	if _, _, _, _, err := DecodeDPT10([]byte{0x1F, 0x00, 0x00}); err == nil {
		t.Error("DecodeDPT10 with hour 31 expected error")
	}
}

func TestDPT11(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want []byte
	}{
		{"2025-03-04", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), []byte{4, 3, 25}},
		{"1995-12-31", time.Date(1995, 12, 31, 0, 0, 0, 0, time.UTC), []byte{31, 12, 95}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeDPT11(tt.date)
			if err != nil {
				t.Fatalf("EncodeDPT11 unexpected error: %v", err)
			}
			if !bytes.Equal(encoded, tt.want) {
				t.Errorf("EncodeDPT11() = %v, want %v", encoded, tt.want)
			}

			decoded, err := DecodeDPT11(encoded)
			if err != nil {
				t.Fatalf("DecodeDPT11 unexpected error: %v", err)
			}
			if !decoded.Equal(tt.date) {
				t.Errorf("round-trip %v = %v", tt.date, decoded)
			}
		})
	}

	if _, err := EncodeDPT11(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("EncodeDPT11 before 1990 expected error")
	}
}

func TestDPT19RoundTrip(t *testing.T) {
	at := time.Date(2025, 8, 23, 10, 15, 30, 0, time.UTC)

	encoded, err := EncodeDPT19(at)
	if err != nil {
		t.Fatalf("EncodeDPT19 unexpected error: %v", err)
	}
	if len(encoded) != 8 {
		t.Fatalf("EncodeDPT19 returned %d bytes", len(encoded))
	}
	if encoded[0] != 125 { // 2025 - 1900
		t.Errorf("year byte = %d, want 125", encoded[0])
	}

	decoded, err := DecodeDPT19(encoded)
	if err != nil {
		t.Fatalf("DecodeDPT19 unexpected error: %v", err)
	}
	if !decoded.Equal(at) {
		t.Errorf("round-trip %v = %v", at, decoded)
	}
}

func TestDPT17(t *testing.T) {
	encoded, err := EncodeDPT17(5)
	if err != nil {
		t.Fatalf("EncodeDPT17 unexpected error: %v", err)
	}
	scene, err := DecodeDPT17(encoded)
	if err != nil {
		t.Fatalf("DecodeDPT17 unexpected error: %v", err)
	}
	if scene != 5 {
		t.Errorf("round-trip scene = %d, want 5", scene)
	}

	if _, err := EncodeDPT17(64); err == nil {
		t.Error("EncodeDPT17(64) expected error")
	}
}

func TestDPT18(t *testing.T) {
	encoded, err := EncodeDPT18(12, true)
	if err != nil {
		t.Fatalf("EncodeDPT18 unexpected error: %v", err)
	}
	if encoded[0] != 0x8C {
		t.Errorf("EncodeDPT18(12, learn) = 0x%02X, want 0x8C", encoded[0])
	}

	scene, learn, err := DecodeDPT18(encoded)
	if err != nil {
		t.Fatalf("DecodeDPT18 unexpected error: %v", err)
	}
	if scene != 12 || !learn {
		t.Errorf("DecodeDPT18() = (%d, %v), want (12, true)", scene, learn)
	}
}
