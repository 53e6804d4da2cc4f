package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "bad boundary", 400)
	expected := "INVALID_INPUT: bad boundary"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("argument out of range")
	err := WrapError(originalErr, ErrCodeInvalidInput, "Invalid pan level.", 400)

	if !errors.Is(err, originalErr) {
		t.Errorf("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "argument out of range") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
}

func TestNewNotConnectedError(t *testing.T) {
	err := NewNotConnectedError("ESP32-DevKit")
	if err.Message != "ESP32-DevKit not connected. Command not sent." {
		t.Errorf("Message = %q", err.Message)
	}
	if err.HTTPStatus != 503 {
		t.Errorf("HTTPStatus = %v, want 503", err.HTTPStatus)
	}
	if err.Context["device"] != "ESP32-DevKit" {
		t.Errorf("Context[device] = %v", err.Context["device"])
	}
}

func TestGetAppError_Chain(t *testing.T) {
	appErr := NewUnsupportedMediaError("expected multipart/x-mixed-replace")
	wrapped := fmt.Errorf("ingress: %w", appErr)

	if got := GetAppError(wrapped); got != appErr {
		t.Errorf("GetAppError() = %v, want %v", got, appErr)
	}
	if !IsAppError(wrapped) {
		t.Error("IsAppError() should see through fmt wrapping")
	}
	if !HasCode(wrapped, ErrCodeUnsupportedMedia) {
		t.Error("HasCode() should match the wrapped code")
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
	if GetAppError(nil) != nil {
		t.Error("GetAppError(nil) should return nil")
	}
}
