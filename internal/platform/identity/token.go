package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Identity describes the authenticated user behind a bearer token.
// Tokens are verified by the API server; the storefront only reads claims to
// select the authoritative cart backend and namespace per-user storage keys.
type Identity struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Authenticated reports whether the identity carries a usable token at now.
func (i Identity) Authenticated(now time.Time) bool {
	if i.Token == "" || i.UserID == "" {
		return false
	}
	return i.ExpiresAt.IsZero() || now.Before(i.ExpiresAt)
}

// Guest is the zero identity.
var Guest = Identity{}

var userIDClaims = []string{"sub", "id", "userId", "_id", "uid"}

// Inspect extracts the user id and expiry from token. Opaque tokens that are not JWTs are accepted
// with a stable id derived from the token hash.
func Inspect(token string) Identity {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Guest
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		sum := sha256.Sum256([]byte(token))
		return Identity{Token: token, UserID: "opaque-" + hex.EncodeToString(sum[:8])}
	}

	id := Identity{Token: token}
	for _, key := range userIDClaims {
		if value, ok := claims[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(value)); s != "" && s != "<nil>" {
				id.UserID = s
				break
			}
		}
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		id.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return id
}
