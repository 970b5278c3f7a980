// Package fingerprint derives and renders short, human-checkable digests of
// a peer's identity for out-of-band verification.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

const domain = "mi_e2ee_fingerprint_v1"

// Of computes the canonical fingerprint: lowercase hex SHA-256 over a
// domain-separated concatenation of (username, id_sig_pk, id_dh_pk).
func Of(username string, idSigPub, idDHPub []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{byte(len(username))})
	h.Write([]byte(username))
	h.Write(idSigPub)
	h.Write(idDHPub)
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes returns the raw digest, for callers that want to feed it into
// Emoji/Hex/QrCode/Base64 directly.
func Bytes(username string, idSigPub, idDHPub []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{byte(len(username))})
	h.Write([]byte(username))
	h.Write(idSigPub)
	h.Write(idDHPub)
	return h.Sum(nil)
}
