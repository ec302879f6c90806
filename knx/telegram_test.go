package knx

import (
	"bytes"
	"errors"
	"testing"
)

func TestTelegramConstructors(t *testing.T) {
	ga := GroupAddress{Main: 1, Middle: 2, Sub: 3}

	w := NewWriteTelegram(ga, []byte{0x01})
	if !w.IsWrite() || w.IsRead() || w.IsResponse() {
		t.Errorf("write telegram predicates wrong: %v", w)
	}
	if w.Destination != ga {
		t.Errorf("Destination = %v, want %v", w.Destination, ga)
	}
	if !bytes.Equal(w.Data, []byte{0x01}) {
		t.Errorf("Data = %X, want 01", w.Data)
	}
	if w.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	r := NewReadTelegram(ga)
	if !r.IsRead() {
		t.Errorf("read telegram predicates wrong: %v", r)
	}
	if r.Data != nil {
		t.Errorf("read telegram carries data: %X", r.Data)
	}

	resp := NewResponseTelegram(ga, []byte{0x0C, 0x66})
	if !resp.IsResponse() {
		t.Errorf("response telegram predicates wrong: %v", resp)
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrEmptyPayload},
		{"one byte", 1, nil},
		{"at limit", 14, nil},
		{"over limit", 15, ErrPayloadTooLarge},
		{"way over limit", 20, ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(make([]byte, tt.size))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidatePayload(%d bytes) = %v, want %v", tt.size, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidatePayload(%d bytes) unexpected error: %v", tt.size, err)
			}
		})
	}
}

func TestTelegramString(t *testing.T) {
	tel := Telegram{
		Source:      IndividualAddress{Area: 1, Line: 1, Device: 4},
		Destination: GroupAddress{Main: 5, Middle: 0, Sub: 1},
		APCI:        APCIWrite,
		Data:        []byte{0x0C, 0x66},
	}

	got := tel.String()
	want := "Telegram{Src:1.1.4, GA:5/0/1, APCI:WRITE, Data:0C66}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
