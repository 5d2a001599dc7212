// Package auth decodes the bearer credential into the local identity and keeps it fresh.
//
// The credential is a JWT issued by the backend. Clients never verify its signature;
// they only read the claims to learn who they are and when the credential expires.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/models"
)

type claims struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	ProfilePictureURL string `json:"profilePictureURL"`
	jwt.RegisteredClaims
}

func parse(token string) (*claims, error) {
	if token == "" {
		return nil, constants.ErrNoToken
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidToken, err)
	}
	return &c, nil
}

// DecodeIdentity reads the identity claims of token without verifying it.
// A credential without a user id is rejected with constants.ErrInvalidToken.
func DecodeIdentity(token string) (models.Identity, error) {
	c, err := parse(token)
	if err != nil {
		return models.Identity{}, err
	}
	if c.ID == "" {
		return models.Identity{}, fmt.Errorf("%w: missing id claim", constants.ErrInvalidToken)
	}

	id := models.Identity{
		UserID:            c.ID,
		UserName:          c.Name,
		Email:             c.Email,
		Role:              c.Role,
		ProfilePictureURL: c.ProfilePictureURL,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	return id, nil
}

// ExpiresAt returns the expiry of token. ok is false when the credential has no exp claim.
func ExpiresAt(token string) (t time.Time, ok bool, err error) {
	c, err := parse(token)
	if err != nil {
		return time.Time{}, false, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, false, nil
	}
	return c.ExpiresAt.Time, true, nil
}

// IsExpired reports whether token is expired at now.
// Undecodable credentials count as expired; credentials without exp never expire.
func IsExpired(token string, now time.Time) bool {
	exp, ok, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return ok && !now.Before(exp)
}

// CheckToken returns the identity of a usable credential, or
// constants.ErrTokenExpired when it has expired at now.
func CheckToken(token string, now time.Time) (models.Identity, error) {
	id, err := DecodeIdentity(token)
	if err != nil {
		return models.Identity{}, err
	}
	if !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt) {
		return models.Identity{}, fmt.Errorf("%w at %s", constants.ErrTokenExpired, id.ExpiresAt.Format(time.RFC3339))
	}
	return id, nil
}
