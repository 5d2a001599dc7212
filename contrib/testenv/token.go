package testenv

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey signs tokens minted by MintToken. Clients never verify the signature.
var SigningKey = []byte("impactboard-test")

// Claims mirrors the claim set issued by the backend.
type Claims struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	Role              string `json:"role,omitempty"`
	ProfilePictureURL string `json:"profilePictureURL,omitempty"`
	jwt.RegisteredClaims
}

// MintToken returns a signed credential for the user that expires after ttl.
// A negative ttl yields an already expired credential.
func MintToken(userID, userName string, ttl time.Duration) string {
	return MintTokenAt(userID, userName, time.Now(), ttl)
}

// MintTokenAt is MintToken with an explicit issue time.
func MintTokenAt(userID, userName string, issuedAt time.Time, ttl time.Duration) string {
	return MintClaims(Claims{
		ID:   userID,
		Name: userName,
		Role: "citizen",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
}

// MintClaims signs an arbitrary claim set.
func MintClaims(c Claims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(SigningKey)
	if err != nil {
		panic(err)
	}
	return token
}
