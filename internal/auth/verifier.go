// Package auth resolves bearer credentials to player identities before a
// connection is admitted to matchmaking.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidToken indicates the credential failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the credential's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrUnauthorized signals that the identity collaborator rejected the credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Identity is the resolved owner of a verified credential.
type Identity struct {
	PlayerID string
}

// Verifier validates a bearer credential and resolves the player behind it.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}
