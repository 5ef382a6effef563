package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultVerifyTimeout = 5 * time.Second

// RemoteVerifier resolves credentials through the external authentication
// service rather than a shared secret.
type RemoteVerifier struct {
	rest      *resty.Client
	verifyURL string
}

// NewRemoteVerifier constructs a verifier that calls the provided verification endpoint.
func NewRemoteVerifier(verifyURL string) (*RemoteVerifier, error) {
	verifyURL = strings.TrimSpace(verifyURL)
	if verifyURL == "" {
		return nil, errors.New("auth service url must not be empty")
	}
	client := resty.New().SetTimeout(defaultVerifyTimeout)
	return &RemoteVerifier{rest: client, verifyURL: verifyURL}, nil
}

// Verify presents the credential to the authentication service and resolves the player id.
func (v *RemoteVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if v == nil || v.rest == nil {
		return Identity{}, errors.New("verifier not initialised")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrInvalidToken
	}

	var body struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	resp, err := v.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+credential).
		SetResult(&body).
		Get(v.verifyURL)
	if err != nil {
		return Identity{}, fmt.Errorf("verify credential: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return Identity{}, ErrUnauthorized
	default:
		return Identity{}, fmt.Errorf("verify credential: unexpected status %d", resp.StatusCode())
	}
	if strings.TrimSpace(body.ID) == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{PlayerID: body.ID}, nil
}
