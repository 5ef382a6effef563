package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pongarena/engine/internal/auth"
)

// handshakeLeeway tolerates small clock drift between the engine and the
// service that minted the token.
const handshakeLeeway = 2 * time.Second

type websocketAuthenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(r *http.Request) (auth.Identity, error) {
	//1.- Fall back to the remote address so anonymous sessions stay distinguishable.
	return auth.Identity{PlayerID: r.RemoteAddr}, nil
}

// extractCredential pulls the bearer credential from the places clients put
// it: the token query parameter, the Authorization header, or X-Auth-Token.
func extractCredential(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Auth-Token"))
}

type verifierAuthenticator struct {
	verifier auth.Verifier
}

func newVerifierAuthenticator(verifier auth.Verifier) (websocketAuthenticator, error) {
	if verifier == nil {
		return nil, errors.New("verifier not configured")
	}
	return &verifierAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming credential and resolves the player identity.
func (a *verifierAuthenticator) Authenticate(r *http.Request) (auth.Identity, error) {
	if a == nil || a.verifier == nil {
		return auth.Identity{}, errors.New("verifier not configured")
	}
	credential := extractCredential(r)
	if credential == "" {
		return auth.Identity{}, errors.New("missing auth token")
	}
	return a.verifier.Verify(r.Context(), credential)
}
