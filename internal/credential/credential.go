// Package credential turns an enrollment id into the scannable pass token
// and back. The token is deliberately plain: a fixed prefix plus the
// enrollment id, so a decoded symbol names exactly one student.
package credential

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Prefix identifies a pass token among arbitrary scanned strings.
const Prefix = "PASS-"

// ErrMalformedToken is returned when a scanned string is not a pass token.
var ErrMalformedToken = errors.New("malformed pass token")

// Encode builds the credential token for an enrollment id.
func Encode(enrollmentID string) string {
	return Prefix + enrollmentID
}

// Decode extracts the enrollment id from a token. The prefix must match and
// the payload must be non-empty; everything else round-trips unchanged.
func Decode(token string) (string, error) {
	if !strings.HasPrefix(token, Prefix) {
		return "", ErrMalformedToken
	}
	id := token[len(Prefix):]
	if id == "" {
		return "", ErrMalformedToken
	}
	return id, nil
}

// RenderPNG draws the token as a QR symbol. size is the side length in pixels.
func RenderPNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}
