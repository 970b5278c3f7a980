package fingerprint

import "encoding/base64"

// Base64 renders b using unpadded URL-safe base64, for contexts (QR
// payloads, compact links) where Hex's separators would waste space.
func Base64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
