package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HMACVerifier validates compact JWT-style tokens signed with HS256 using a
// secret shared with the authentication service.
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACVerifier constructs a verifier for the supplied shared secret and clock skew allowance.
func NewHMACVerifier(secret string, leeway time.Duration) (*HMACVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// Verify parses the token, validates signature and expiry, and resolves the subject.
func (v *HMACVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return Identity{}, errors.New("verifier not initialised")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrInvalidToken
	}

	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return Identity{}, ErrInvalidToken
	}

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
		Type      string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return Identity{}, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	expectedSig, err := v.sign([]byte(parts[0] + "." + parts[1]))
	if err != nil {
		return Identity{}, err
	}
	signatureBytes, err := decodeSegment(parts[2])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if !hmac.Equal(signatureBytes, expectedSig) {
		return Identity{}, ErrInvalidToken
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var payload struct {
		Subject string `json:"sub"`
		Expires int64  `json:"exp"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	if payload.Expires <= 0 {
		return Identity{}, ErrInvalidToken
	}
	if time.Unix(payload.Expires, 0).Add(v.leeway).Before(v.now()) {
		return Identity{}, ErrExpiredToken
	}

	return Identity{PlayerID: payload.Subject}, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *HMACVerifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}

func (v *HMACVerifier) sign(payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, v.secret)
	if _, err := mac.Write(payload); err != nil {
		return nil, err
	}
	return mac.Sum(nil), nil
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}
