package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the hex HMAC-SHA256 of "{timestamp}.{body}" under secret.
// The signed string must match byte-for-byte what the receiver recomputes.
func Compute(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the presented signature matches the recomputed one
// in constant time.
func Verify(secret, timestamp string, body []byte, presented string) bool {
	expected := Compute(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}
