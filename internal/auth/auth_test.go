package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticIdentity(t *testing.T) {
	id := NewStaticIdentity(map[string]User{
		"tok-1": {ID: "u1", Name: "ann"},
	}, false)

	user, err := id.Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = id.Resolve(context.Background(), "tok-2")
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = id.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestStaticIdentityAnonymous(t *testing.T) {
	id := NewStaticIdentity(nil, true)
	user, err := id.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", user.ID)
}

func TestStaticRoles(t *testing.T) {
	perms := NewStaticRoles(map[string]map[string]bool{
		"doc-1": {"editor": true, "viewer": false},
	}, false)

	ctx := context.Background()
	assert.True(t, perms.CanEdit(ctx, "editor", "doc-1"))
	assert.False(t, perms.CanEdit(ctx, "viewer", "doc-1"))
	assert.False(t, perms.CanEdit(ctx, "stranger", "doc-1"), "default applies to unknown users")
	assert.False(t, perms.CanEdit(ctx, "editor", "doc-2"), "grants are per document")
}

func TestAllowAll(t *testing.T) {
	assert.True(t, AllowAll{}.CanEdit(context.Background(), "anyone", "anything"))
}
