package models

import "time"

// Identity is the local user as decoded from the bearer credential.
type Identity struct {
	UserID            string    `json:"id"`
	UserName          string    `json:"name"`
	Email             string    `json:"email,omitempty"`
	Role              string    `json:"role,omitempty"`
	ProfilePictureURL string    `json:"profilePictureURL,omitempty"`
	ExpiresAt         time.Time `json:"-"`
	IssuedAt          time.Time `json:"-"`
}

// Valid reports whether the identity carries a user id.
func (i Identity) Valid() bool {
	return i.UserID != ""
}

// Participant returns the presence record for this identity.
func (i Identity) Participant() Participant {
	return Participant{UserID: i.UserID, UserName: i.UserName}
}

// Roles carried in the credential.
const (
	RoleCitizen = "citizen"
	RoleAdmin   = "admin"
	RoleNGO     = "ngo"
)
