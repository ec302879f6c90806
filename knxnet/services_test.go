package knxnet

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/usul27/pknx/knx"
)

func localHPAI() HPAI {
	return HPAI{IP: net.IPv4(192, 168, 1, 10).To4(), Port: 50000}
}

func TestEncodeConnectRequest(t *testing.T) {
	got := EncodeConnectRequest(localHPAI(), localHPAI())

	want := []byte{
		0x06, 0x10, 0x02, 0x05, 0x00, 0x1A, // header, total 26
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x0A, 0xC3, 0x50, // control HPAI
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x0A, 0xC3, 0x50, // data HPAI
		0x04, 0x04, 0x02, 0x00, // CRI: tunnel, link layer
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeConnectRequest() = % X, want % X", got, want)
	}
}

func TestDecodeConnectResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		data := []byte{
			0x06, 0x10, 0x02, 0x06, 0x00, 0x14,
			0x15, 0x00, // channel 0x15, status OK
			0x08, 0x01, 0xC0, 0xA8, 0x01, 0x01, 0x0E, 0x57, // data endpoint
			0x04, 0x04, 0x11, 0x0A, // CRD
		}
		svc, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		resp, ok := svc.(ConnectResponse)
		if !ok {
			t.Fatalf("Decode() = %T, want ConnectResponse", svc)
		}
		if resp.Channel != 0x15 || resp.Status != StatusNoError {
			t.Errorf("channel/status = %d/%d, want 21/0", resp.Channel, resp.Status)
		}
		if resp.DataEndpoint.Port != 3671 {
			t.Errorf("data endpoint port = %d, want 3671", resp.DataEndpoint.Port)
		}
		if !resp.DataEndpoint.IP.Equal(net.IPv4(192, 168, 1, 1)) {
			t.Errorf("data endpoint ip = %v, want 192.168.1.1", resp.DataEndpoint.IP)
		}
	})

	t.Run("refused without HPAI", func(t *testing.T) {
		data := []byte{
			0x06, 0x10, 0x02, 0x06, 0x00, 0x08,
			0x00, 0x24, // no channel, no more connections
		}
		svc, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		resp := svc.(ConnectResponse)
		if resp.Status != StatusNoMoreConnections {
			t.Errorf("status = 0x%02X, want 0x24", resp.Status)
		}
	})
}

func TestDecodeHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "too short",
			data:    []byte{0x06, 0x10},
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "bad magic",
			data:    []byte{0x07, 0x10, 0x02, 0x06, 0x00, 0x06},
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "wrong protocol version",
			data:    []byte{0x06, 0x20, 0x02, 0x06, 0x00, 0x06},
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "length mismatch",
			data:    []byte{0x06, 0x10, 0x02, 0x08, 0x00, 0x09, 0x15, 0x00},
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "unknown service type",
			data:    []byte{0x06, 0x10, 0x03, 0x11, 0x00, 0x06},
			wantErr: ErrUnknownServiceType,
		},
		{
			name:    "truncated ack body",
			data:    []byte{0x06, 0x10, 0x04, 0x21, 0x00, 0x08, 0x04, 0x15},
			wantErr: ErrTruncatedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTunnelingRoundTrip(t *testing.T) {
	tel := knx.NewWriteTelegram(knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}, []byte{0x01})

	data := EncodeTunnelingRequest(0x15, 0x2A, tel)
	svc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	req, ok := svc.(TunnelingRequest)
	if !ok {
		t.Fatalf("Decode() = %T, want TunnelingRequest", svc)
	}
	if req.Channel != 0x15 || req.Seq != 0x2A {
		t.Errorf("channel/seq = %d/%d, want 21/42", req.Channel, req.Seq)
	}
	if req.CEMICode != CEMILDataReq {
		t.Errorf("cEMI code = 0x%02X, want 0x%02X", req.CEMICode, CEMILDataReq)
	}
	if req.Telegram.Destination != tel.Destination || !req.Telegram.IsWrite() {
		t.Errorf("telegram = %v, want %v", req.Telegram, tel)
	}
	if !bytes.Equal(req.Telegram.Data, tel.Data) {
		t.Errorf("payload = % X, want % X", req.Telegram.Data, tel.Data)
	}
}

func TestTunnelingAckRoundTrip(t *testing.T) {
	data := EncodeTunnelingAck(0x15, 0x07, StatusNoError)

	want := []byte{0x06, 0x10, 0x04, 0x21, 0x00, 0x0A, 0x04, 0x15, 0x07, 0x00}
	if !bytes.Equal(data, want) {
		t.Fatalf("EncodeTunnelingAck() = % X, want % X", data, want)
	}

	svc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	ack, ok := svc.(TunnelingAck)
	if !ok {
		t.Fatalf("Decode() = %T, want TunnelingAck", svc)
	}
	if ack.Channel != 0x15 || ack.Seq != 0x07 || ack.Status != StatusNoError {
		t.Errorf("ack = %+v", ack)
	}
}

func TestDecodeDisconnectRequest(t *testing.T) {
	data := []byte{
		0x06, 0x10, 0x02, 0x09, 0x00, 0x10,
		0x15, 0x00,
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x01, 0x0E, 0x57,
	}
	svc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	req, ok := svc.(DisconnectRequest)
	if !ok {
		t.Fatalf("Decode() = %T, want DisconnectRequest", svc)
	}
	if req.Channel != 0x15 {
		t.Errorf("channel = %d, want 21", req.Channel)
	}
}

func TestEncodeDisconnectRequest(t *testing.T) {
	got := EncodeDisconnectRequest(0x15, localHPAI())
	want := []byte{
		0x06, 0x10, 0x02, 0x09, 0x00, 0x10,
		0x15, 0x00,
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x0A, 0xC3, 0x50,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeDisconnectRequest() = % X, want % X", got, want)
	}
}

func TestDecodeSearchResponse(t *testing.T) {
	body := []byte{
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x01, 0x0E, 0x57, // endpoint
	}
	// device info DIB with friendly name
	dib := make([]byte, 54)
	dib[0] = 54
	dib[1] = dibDeviceInfo
	copy(dib[24:], "Test Gateway")
	body = append(body, dib...)

	data := frame(ServiceSearchResponse, body)
	svc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	resp, ok := svc.(SearchResponse)
	if !ok {
		t.Fatalf("Decode() = %T, want SearchResponse", svc)
	}
	if resp.Endpoint.Port != 3671 {
		t.Errorf("endpoint port = %d, want 3671", resp.Endpoint.Port)
	}
	if resp.Name != "Test Gateway" {
		t.Errorf("name = %q, want %q", resp.Name, "Test Gateway")
	}
}

func TestEncodeSearchRequest(t *testing.T) {
	got := EncodeSearchRequest(localHPAI())
	want := []byte{
		0x06, 0x10, 0x02, 0x01, 0x00, 0x0E,
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x0A, 0xC3, 0x50,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSearchRequest() = % X, want % X", got, want)
	}
}

func TestEncodeConnectionStateRequest(t *testing.T) {
	got := EncodeConnectionStateRequest(0x15, localHPAI())
	want := []byte{
		0x06, 0x10, 0x02, 0x07, 0x00, 0x10,
		0x15, 0x00,
		0x08, 0x01, 0xC0, 0xA8, 0x01, 0x0A, 0xC3, 0x50,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeConnectionStateRequest() = % X, want % X", got, want)
	}
}
