package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"matchme-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoIdentity = errors.New("realtime: identity unavailable")

// IdentityLookup fetches the authenticated user. *backend.Client satisfies it.
type IdentityLookup interface {
	Me(ctx context.Context) (*models.User, error)
}

// EmailFromToken reads the sub claim of a JWT. The signature is not checked:
// the server verifies the token on CONNECT, the client only needs the address
// its match topic is named after.
func EmailFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no sub claim", ErrNoIdentity)
	}
	return sub, nil
}

// userIDCache resolves the numeric user id once per session.
type userIDCache struct {
	lookup IdentityLookup

	mu sync.Mutex
	id *int64
}

func (c *userIDCache) Resolve(ctx context.Context) (int64, error) {
	if id, ok := c.Cached(); ok {
		return id, nil
	}
	if c.lookup == nil {
		return 0, fmt.Errorf("%w: no identity lookup configured", ErrNoIdentity)
	}

	user, err := c.lookup.Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if user == nil || user.ID == 0 {
		return 0, fmt.Errorf("%w: identity endpoint returned no id", ErrNoIdentity)
	}

	c.mu.Lock()
	id := user.ID
	c.id = &id
	c.mu.Unlock()
	return id, nil
}

func (c *userIDCache) Cached() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == nil {
		return 0, false
	}
	return *c.id, true
}

func (c *userIDCache) Reset() {
	c.mu.Lock()
	c.id = nil
	c.mu.Unlock()
}
