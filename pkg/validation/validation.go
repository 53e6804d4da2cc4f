package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	// BoundaryRegex matches RFC 2046 boundary characters.
	BoundaryRegex = regexp.MustCompile(`^[0-9A-Za-z'()+_,\-./:=? ]{1,70}$`)

	// PathRegex validates an absolute HTTP route path.
	PathRegex = regexp.MustCompile(`^/[A-Za-z0-9_\-./]*$`)
)

// ValidateBoundary validates a multipart boundary token. A leading "--" is
// accepted and ignored.
func ValidateBoundary(boundary string) error {
	token := strings.TrimPrefix(boundary, "--")
	if token == "" {
		return fmt.Errorf("boundary is required")
	}
	if !BoundaryRegex.MatchString(token) {
		return fmt.Errorf("boundary must be 1-70 RFC 2046 characters")
	}
	if strings.HasSuffix(token, " ") {
		return fmt.Errorf("boundary must not end with a space")
	}
	return nil
}

// ValidateDeviceLabel validates a device name used as handshake text.
func ValidateDeviceLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("device label is required")
	}
	if label != strings.TrimSpace(label) {
		return fmt.Errorf("device label must not have surrounding whitespace")
	}
	if len(label) > 64 {
		return fmt.Errorf("device label is too long (max 64 characters)")
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return fmt.Errorf("device label contains control characters")
		}
	}
	return nil
}

// ValidatePath validates a route path such as the WebSocket endpoint.
func ValidatePath(path string) error {
	if !PathRegex.MatchString(path) {
		return fmt.Errorf("invalid route path %q", path)
	}
	return nil
}

// ValidateRelayURL validates a ws:// or wss:// relay address.
func ValidateRelayURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("relay URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay URL scheme must be ws or wss")
	}
	if u.Host == "" {
		return fmt.Errorf("relay URL host is required")
	}
	return nil
}
