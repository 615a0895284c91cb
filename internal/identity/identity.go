// Package identity abstracts the external identity/authentication service.
// The engine only needs display data for a participant id; resolution
// itself happens elsewhere.
package identity

import (
	"context"
	"fmt"
)

// User is the display data the engine needs for a participant.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Resolver looks up user display data by id.
type Resolver interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// StaticResolver resolves users from a fixed map, falling back to a
// synthesized visitor name for unknown ids. It backs tests and deployments
// where the identity service pushes data through configuration.
type StaticResolver struct {
	users map[string]User
}

// NewStaticResolver builds a resolver over the given users.
func NewStaticResolver(users []User) *StaticResolver {
	m := make(map[string]User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &StaticResolver{users: m}
}

// GetUser returns the configured user, or a visitor placeholder when the id
// is unknown. It never fails: an unreachable identity service must not stop
// a chat from starting.
func (r *StaticResolver) GetUser(_ context.Context, id string) (User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return User{ID: id, Name: fmt.Sprintf("Visitante %s", short)}, nil
}
