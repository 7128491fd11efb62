// Package credentials provides access to the locally persisted session
// fields that authorize the realtime channel. The store is a small async
// key-value surface; the channel layer only ever reads a snapshot of it at
// connect time and wipes it on forced termination.
package credentials

import (
	"context"
	"fmt"
)

// Well-known credential keys.
const (
	KeySessionToken = "sessionToken"
	KeyUserToken    = "userToken"
	KeyUserID       = "userId"
	KeyUserRole     = "userRole"
	KeyTenantID     = "tenantId"
	KeyUserBlob     = "userBlob"
)

// SessionKeys lists every session-identifying key. A forced termination
// removes all of them in one call.
var SessionKeys = []string{
	KeySessionToken,
	KeyUserToken,
	KeyUserID,
	KeyUserRole,
	KeyTenantID,
	KeyUserBlob,
}

// Store is the credential storage boundary.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// RemoveAll deletes every listed key. Missing keys are not an error.
	RemoveAll(ctx context.Context, keys []string) error
}

// Role is the access role attached to a session.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleAgencyOwner Role = "agency_owner"
	RoleAgent       Role = "agent"
	RoleCustomer    Role = "customer"
	RoleUnknown     Role = "unknown"
)

// ParseRole maps a stored role string to a Role. Anything unrecognized
// (including empty) is RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleAgencyOwner, RoleAgent, RoleCustomer:
		return Role(s)
	}
	return RoleUnknown
}

// Session is a read-only snapshot of the stored session fields, fetched at
// connect time.
type Session struct {
	Token    string
	UserID   string
	Role     Role
	TenantID string // optional, empty when the role has no tenant scope
}

// Valid reports whether the session can authorize a connection. A missing
// token is the expected "not yet authenticated" state, not an error.
func (s Session) Valid() bool {
	return s.Token != ""
}

// LoadSession reads the current session snapshot from the store.
func LoadSession(ctx context.Context, store Store) (Session, error) {
	token, _, err := store.Get(ctx, KeySessionToken)
	if err != nil {
		return Session{}, fmt.Errorf("read session token: %w", err)
	}
	userID, _, err := store.Get(ctx, KeyUserID)
	if err != nil {
		return Session{}, fmt.Errorf("read user id: %w", err)
	}
	role, _, err := store.Get(ctx, KeyUserRole)
	if err != nil {
		return Session{}, fmt.Errorf("read user role: %w", err)
	}
	tenantID, _, err := store.Get(ctx, KeyTenantID)
	if err != nil {
		return Session{}, fmt.Errorf("read tenant id: %w", err)
	}

	return Session{
		Token:    token,
		UserID:   userID,
		Role:     ParseRole(role),
		TenantID: tenantID,
	}, nil
}
