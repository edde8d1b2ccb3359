package vapid

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// KeyMaterial is either Raw bytes or a PEM document, as found in configuration.
type KeyMaterial interface {
	isKeyMaterial()
}

// Raw holds decoded base64url key bytes: a 32-byte P-256 scalar or a 65-byte
// uncompressed point.
type Raw []byte

// PEM holds a PKCS8, SEC1 or SPKI document.
type PEM string

func (Raw) isKeyMaterial() {}
func (PEM) isKeyMaterial() {}

const pemMarker = "-----BEGIN"

// ParseMaterial classifies s once. Escaped newlines ("\n" literals, common in
// env vars) are restored for PEM input.
func ParseMaterial(s string) (KeyMaterial, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMissingKey
	}
	if strings.Contains(s, pemMarker) {
		return PEM(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	b, err := decodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url: %v", ErrInvalidKey, err)
	}
	return Raw(b), nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
