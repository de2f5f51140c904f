package interactions

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"

	// maxBodySize caps webhook bodies; interaction payloads are small.
	maxBodySize = 1 << 20
)

// ParsePublicKey decodes the hex-encoded verification key the platform
// issues per application.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("interactions: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("interactions: public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Verify rejects webhooks whose signature over timestamp||body does not
// check out. The body is re-buffered for the next handler.
func Verify(key ed25519.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, err := hex.DecodeString(r.Header.Get(headerSignature))
			if err != nil || len(sig) != ed25519.SignatureSize {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			ts := r.Header.Get(headerTimestamp)
			if ts == "" {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			r.Body.Close()

			if !ed25519.Verify(key, append([]byte(ts), body...), sig) {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
