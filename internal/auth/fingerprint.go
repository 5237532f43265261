package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// FingerprintHeader carries an optional client-computed fingerprint on
// requests without a JSON body.
const FingerprintHeader = "X-Device-Fingerprint"

// Fingerprint derives a stable hash identifying the client device. The
// client-supplied value wins when present; otherwise the hash covers
// user agent, accept-language, and the forwarded client IP. The same
// inputs always produce the same hash: no randomness may ever be mixed
// in, or recognized devices would stop being recognized.
func Fingerprint(header http.Header, remoteIP, clientValue string) string {
	source := clientValue
	if source == "" {
		source = header.Get("User-Agent") + "|" + header.Get("Accept-Language") + "|" + remoteIP
	}
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
