package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when no valid credential is presented at
// connection upgrade. The connection must be refused; an unauthenticated
// identity is never registered.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated user a connection belongs to.
type Identity struct {
	ID       int64
	Username string
}

// TokenVerifier resolves a bearer credential into an Identity. The actual
// verification rules belong to the identity collaborator; the gate only
// adapts its result.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Gate authenticates connection upgrade requests.
type Gate struct {
	verifier TokenVerifier
}

func NewGate(v TokenVerifier) *Gate {
	return &Gate{verifier: v}
}

// Authenticate resolves the credential carried by an upgrade request.
// It accepts a bearer token in the Authorization header or, for websocket
// clients that cannot set headers, a "token" query parameter.
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	token := ""

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 {
			token = parts[1]
		}
	}

	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}
