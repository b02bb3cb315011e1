// Package auth defines the identity and permission collaborators consumed by
// the collaboration engine. The engine never parses credentials itself; it
// hands the transport-level token to Identity before a connection joins a
// document, and consults Permissions before applying any mutating message.
// The implementations here are in-memory; production deployments plug in
// their own.
package auth

import (
	"context"
	"errors"
)

// ErrUnknownToken is returned for credentials the identity resolver does not
// recognize.
var ErrUnknownToken = errors.New("unknown token")

// User is a resolved identity.
type User struct {
	ID   string
	Name string
}

// Identity resolves a transport-level credential to a user.
type Identity interface {
	Resolve(ctx context.Context, token string) (User, error)
}

// Permissions answers whether a user may mutate a document. Read access is
// decided before the socket reaches the engine.
type Permissions interface {
	CanEdit(ctx context.Context, userID, docID string) bool
}

var _ Identity = (*StaticIdentity)(nil)

// StaticIdentity resolves tokens from a fixed map, optionally admitting
// empty tokens as an anonymous user.
type StaticIdentity struct {
	users          map[string]User
	allowAnonymous bool
}

// NewStaticIdentity builds a resolver over a token -> user map.
func NewStaticIdentity(users map[string]User, allowAnonymous bool) *StaticIdentity {
	if users == nil {
		users = make(map[string]User)
	}
	return &StaticIdentity{users: users, allowAnonymous: allowAnonymous}
}

func (s *StaticIdentity) Resolve(_ context.Context, token string) (User, error) {
	if token == "" {
		if s.allowAnonymous {
			return User{ID: "anonymous", Name: "anonymous"}, nil
		}
		return User{}, ErrUnknownToken
	}
	user, ok := s.users[token]
	if !ok {
		return User{}, ErrUnknownToken
	}
	return user, nil
}

var _ Permissions = AllowAll{}

// AllowAll grants edit access to everyone.
type AllowAll struct{}

func (AllowAll) CanEdit(context.Context, string, string) bool { return true }

var _ Permissions = (*StaticRoles)(nil)

// StaticRoles grants edit access from a per-document grant table with a
// configurable default for pairs the table does not mention.
type StaticRoles struct {
	grants      map[string]map[string]bool // docID -> userID -> can edit
	defaultEdit bool
}

// NewStaticRoles builds a permission table. grants maps document ids to the
// users with an explicit decision for them.
func NewStaticRoles(grants map[string]map[string]bool, defaultEdit bool) *StaticRoles {
	if grants == nil {
		grants = make(map[string]map[string]bool)
	}
	return &StaticRoles{grants: grants, defaultEdit: defaultEdit}
}

func (s *StaticRoles) CanEdit(_ context.Context, userID, docID string) bool {
	if users, ok := s.grants[docID]; ok {
		if decision, ok := users[userID]; ok {
			return decision
		}
	}
	return s.defaultEdit
}
