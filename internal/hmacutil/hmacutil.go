// Package hmacutil implements the backend's request/response authentication
// scheme: HMAC-SHA256 signatures carried in the X-Ycm-Hmac header.
package hmacutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Header is the HTTP header carrying the base64 signature.
const Header = "X-Ycm-Hmac"

// SecretLength is the size in bytes of a generated shared secret.
const SecretLength = 16

// NewSecret generates a fresh random shared secret for one backend server.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("hmacutil: generate secret: %w", err)
	}
	return secret, nil
}

func digest(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// Sum computes the composite signature over the given chunks: each chunk is
// HMACed separately, the digests are concatenated, and the concatenation is
// HMACed again. The result is base64-encoded.
func Sum(secret []byte, chunks ...[]byte) string {
	joined := make([]byte, 0, len(chunks)*sha256.Size)
	for _, chunk := range chunks {
		joined = append(joined, digest(secret, chunk)...)
	}
	return base64.StdEncoding.EncodeToString(digest(secret, joined))
}

// SumRequest signs an outgoing request over its method, path, and body.
func SumRequest(secret []byte, method, path string, body []byte) string {
	return Sum(secret, []byte(method), []byte(path), body)
}

// SumBody signs a response body alone, the form the backend uses for its
// responses.
func SumBody(secret, body []byte) string {
	return base64.StdEncoding.EncodeToString(digest(secret, body))
}

// Verify checks a response body against the base64 signature from its
// header. Comparison is constant-time.
func Verify(secret, body []byte, header string) bool {
	claimed, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(claimed, digest(secret, body))
}
