package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown client or a wrong secret
var ErrInvalidCredentials = errors.New("invalid client credentials")

// dummyHash is compared against when the client is unknown so lookups
// of unknown and known clients take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-client"), bcrypt.MinCost)

// ClientAuthenticator verifies API client secrets against bcrypt hashes
type ClientAuthenticator struct {
	clients map[string][]byte
}

// NewClientAuthenticator builds an authenticator from client ID to bcrypt hash
func NewClientAuthenticator(clients map[string]string) (*ClientAuthenticator, error) {
	a := &ClientAuthenticator{clients: make(map[string][]byte, len(clients))}
	for id, hash := range clients {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("client %q: secret is not a bcrypt hash: %w", id, err)
		}
		// viper lowercases map keys
		a.clients[strings.ToLower(id)] = []byte(hash)
	}
	return a, nil
}

// Authenticate checks secret for clientID
func (a *ClientAuthenticator) Authenticate(clientID, secret string) error {
	hash, ok := a.clients[strings.ToLower(clientID)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Len returns the number of registered clients
func (a *ClientAuthenticator) Len() int {
	return len(a.clients)
}

// HashSecret produces the bcrypt hash to put in auth.clients
func HashSecret(secret string) (string, error) {
	if len(secret) < 16 {
		return "", errors.New("client secret must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
