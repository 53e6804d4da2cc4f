package validation

import (
	"strings"
	"testing"
)

func TestValidateBoundary(t *testing.T) {
	tests := []struct {
		name     string
		boundary string
		wantErr  bool
	}{
		{"camera default", "ESP32CAM_BOUNDARY", false},
		{"dash prefixed", "--ESP32CAM_BOUNDARY", false},
		{"rfc punctuation", "a'()+_,-./:=? b", false},
		{"empty", "", true},
		{"only dashes", "--", true},
		{"too long", strings.Repeat("a", 71), true},
		{"max length", strings.Repeat("a", 70), false},
		{"trailing space", "abc ", true},
		{"invalid char", "abc;def", true},
		{"quote", `abc"def`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBoundary(tt.boundary)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBoundary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeviceLabel(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"actuator", "ESP32-DevKit", false},
		{"with space", "Rover Cam", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"padded", " ESP32 ", true},
		{"control", "ESP32\x00", true},
		{"too long", strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceLabel(tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeviceLabel() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	for _, path := range []string{"/ws", "/", "/api/v1/ws"} {
		if err := ValidatePath(path); err != nil {
			t.Errorf("ValidatePath(%q) unexpected error: %v", path, err)
		}
	}
	for _, path := range []string{"", "ws", "/ws?x=1", "/a b"} {
		if err := ValidatePath(path); err == nil {
			t.Errorf("ValidatePath(%q) expected error", path)
		}
	}
}

func TestValidateRelayURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"ws", "ws://localhost:8080/ws", false},
		{"wss", "wss://relay.example.com/ws", false},
		{"empty", "", true},
		{"http scheme", "http://localhost:8080/ws", true},
		{"no host", "ws:///ws", true},
		{"malformed", "ws://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelayURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelayURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
