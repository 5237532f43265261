package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0")
	header.Set("Accept-Language", "en-US")

	first := Fingerprint(header, "203.0.113.9", "")
	second := Fingerprint(header, "203.0.113.9", "")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprintVariesWithInputs(t *testing.T) {
	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0")
	header.Set("Accept-Language", "en-US")

	base := Fingerprint(header, "203.0.113.9", "")

	otherIP := Fingerprint(header, "198.51.100.7", "")
	assert.NotEqual(t, base, otherIP)

	otherHeader := http.Header{}
	otherHeader.Set("User-Agent", "curl/8.0")
	otherHeader.Set("Accept-Language", "en-US")
	assert.NotEqual(t, base, Fingerprint(otherHeader, "203.0.113.9", ""))
}

func TestFingerprintClientValueWins(t *testing.T) {
	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0")

	withClient := Fingerprint(header, "203.0.113.9", "client-supplied")
	sameClientOtherIP := Fingerprint(http.Header{}, "198.51.100.7", "client-supplied")
	assert.Equal(t, withClient, sameClientOtherIP)
}
