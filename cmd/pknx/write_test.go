package main

import (
	"bytes"
	"testing"
)

func TestParseWriteValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		dpt     string
		want    []byte
		wantErr bool
	}{
		{"raw hex", "0C33", "", []byte{0x0C, 0x33}, false},
		{"raw single byte", "01", "", []byte{0x01}, false},
		{"raw invalid hex", "zz", "", nil, true},
		{"switch on", "on", "1.001", []byte{0x01}, false},
		{"switch false", "false", "1.001", []byte{0x00}, false},
		{"scaling percent", "100", "5.001", []byte{0xFF}, false},
		{"temperature", "21.5", "9.001", []byte{0x0C, 0x33}, false},
		{"not a number", "warm", "9.001", nil, true},
		{"unknown dpt", "1", "240.001", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWriteValue(tt.raw, tt.dpt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseWriteValue(%q, %q) error = %v, wantErr %v", tt.raw, tt.dpt, err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(got, tt.want) {
				t.Errorf("parseWriteValue(%q, %q) = %X, want %X", tt.raw, tt.dpt, got, tt.want)
			}
		})
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	want := []string{"discover", "read", "write", "toggle", "monitor", "bridge", "inventory"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
