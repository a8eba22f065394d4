// Package directory abstracts the user store the authorization server issues
// grants for. The server never manages user accounts itself; it resolves
// resource-owner identities through a Directory at token validation and
// userinfo time.
package directory

import (
	"context"
	"errors"
	"sync"
)

// ErrUserNotFound is returned when no user exists for the given identifier.
var ErrUserNotFound = errors.New("directory: user not found")

// UserStatus indicates whether a user account may receive grants.
type UserStatus int

const (
	UserDisabled UserStatus = 0
	UserEnabled  UserStatus = 1
)

// User is a resolved resource-owner identity.
type User struct {
	ID       int64
	Username string
	Email    string
	Name     string
	Status   UserStatus
	IsAdmin  bool
}

// Directory resolves user identities by ID.
type Directory interface {
	// ResolveUser returns the user for the given ID, or ErrUserNotFound.
	ResolveUser(ctx context.Context, userID int64) (*User, error)
}

// Static is an in-memory Directory backed by a fixed user set.
// Intended for tests and embedded deployments.
type Static struct {
	mu    sync.RWMutex
	users map[int64]*User
}

var _ Directory = (*Static)(nil)

// NewStatic creates a Static directory seeded with the given users.
func NewStatic(users ...*User) *Static {
	s := &Static{users: make(map[int64]*User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// ResolveUser implements Directory.
func (s *Static) ResolveUser(_ context.Context, userID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// AddUser adds or replaces a user record.
func (s *Static) AddUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}
