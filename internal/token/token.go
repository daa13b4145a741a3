package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuth is the class for every token failure: missing token,
// undecodable payload, missing sub, disallowed role.
var ErrAuth = errors.New("authentication failed")

// Identity is the result of decoding a bearer token.
type Identity struct {
	UserID string
	Role   string // tenant | manager
}

// Authenticator decodes bearer tokens issued by the identity provider.
//
// The payload is decoded without signature verification: the issuer's
// public keys are not available to this service yet, so a forged sub
// claim would be accepted. A verifying jwt.Keyfunc plugs in here once
// the key set is wired up.
type Authenticator struct {
	parser *jwt.Parser
}

func NewAuthenticator() *Authenticator {
	return &Authenticator{parser: jwt.NewParser()}
}

// Decode extracts {userId, role} from a raw bearer token. The payload
// must carry a sub claim and a custom:role claim equal to tenant or
// manager (case-insensitive).
func (a *Authenticator) Decode(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: no token supplied", ErrAuth)
	}

	claims := jwt.MapClaims{}
	if _, _, err := a.parser.ParseUnverified(raw, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: token has no sub claim", ErrAuth)
	}

	role, _ := claims["custom:role"].(string)
	role = strings.ToLower(role)
	if role != "tenant" && role != "manager" {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrAuth, role)
	}

	return Identity{UserID: sub, Role: role}, nil
}

// FromRequestParts picks the token from the places a client may put
// it, in priority order: the explicit value (handshake auth field),
// the token query parameter, then an Authorization: Bearer header.
func FromRequestParts(explicit, query, authHeader string) string {
	if explicit != "" {
		return explicit
	}
	if query != "" {
		return query
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
