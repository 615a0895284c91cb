package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver_KnownUser(t *testing.T) {
	r := NewStaticResolver([]User{{ID: "u1", Name: "Maria", Email: "maria@example.com"}})

	u, err := r.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Maria", u.Name)
	assert.Equal(t, "maria@example.com", u.Email)
}

func TestStaticResolver_UnknownUserGetsVisitorName(t *testing.T) {
	r := NewStaticResolver(nil)

	u, err := r.GetUser(context.Background(), "abcdef1234567890")
	require.NoError(t, err)
	assert.Equal(t, "Visitante abcdef12", u.Name)

	u, err = r.GetUser(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, "Visitante x1", u.Name)
}
