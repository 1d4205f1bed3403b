// Package auth verifies identity-provider JWTs at the API boundary. The
// vault trusts the verified identity and never re-checks credentials.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sealvault/sealvault/internal/common"
)

// Identity is the verified caller identity supplied by the external
// identity provider.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// Claims carries the registered claims plus the vault's identity fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// GenerateToken mints an HS256 token for the given identity. The identity
// provider owns issuance in production; this is used by tests and tooling.
func GenerateToken(identity Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:   identity.UserID,
		Username: identity.Username,
		IsAdmin:  identity.IsAdmin,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// IdentityFromToken parses and verifies a token, returning the embedded
// identity. Invalid, malformed, or expired tokens yield ErrInvalidToken.
func IdentityFromToken(tokenString string, secretKey []byte) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, Username: claims.Username, IsAdmin: claims.IsAdmin}, nil
}
