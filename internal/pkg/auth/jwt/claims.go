package jwt

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// Payload defines the structure of the JSON Web Token (JWT) claims for dmchat.
// It carries the verified user identity that every REST call and every
// realtime connection is attributed to.
type Payload struct {
	// StandardClaims embeds the registered JWT fields such as exp, iat and iss.
	// They are validated by ParseToken.
	jwt.StandardClaims

	// ID is the user id of the token holder.
	ID string `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// FullName is the display name.
	FullName string `json:"fullName"`

	// Avatar is the avatar image reference; may be empty.
	Avatar string `json:"avatar,omitempty"`
}

// Expiry returns the expiration time recorded in the token.
func (p *Payload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}
