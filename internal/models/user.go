// Package models holds the user-facing records shared by the server, the
// transports and the client: the canonical user record, its profile, the
// partial updates clients may send, and the identity extracted from an
// external assertion.
package models

import "time"

// SubjectIdentity is what a verified identity assertion says about its holder.
type SubjectIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Profile holds the mutable profile fields of a user.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the canonical user record. The server owns it; clients cache copies.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Profile   Profile   `json:"profile"`

	// Provider and Subject bind the record to an external identity.
	// They never leave the server.
	Provider string `json:"-"`
	Subject  string `json:"-"`
}
