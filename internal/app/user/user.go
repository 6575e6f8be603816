/*
Package user contains core data structures and logic related to user identity.

It defines the public representation of a user (the User struct), the stored account
record behind it, and the service that registers, authenticates and looks up users.
*/
package user

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when no user matches.
	ErrNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned by a Store when a username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
)

// User represents the identity of a chat participant as seen by other users.
// It is immutable once issued; the realtime core never modifies it.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// FullName is the display name.
	FullName string `json:"fullName"`

	// Avatar is the URL of the user's avatar image; empty when unset.
	Avatar string `json:"avatar,omitempty"`
}

// Account is the stored record behind a User.
type Account struct {
	User

	PasswordHash []byte
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}
