// Package auth verifies bearer credentials issued by the account
// service and resolves them to user identities. Token issuance lives
// elsewhere; this side only validates.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/streamcart/streamcart/internal/models"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the identity claims the account service embeds in access
// tokens.
type Claims struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role"`
	ShopName string `json:"shop_name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens and yields the verified
// identity.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a bearer token, returning the identity
// it asserts.
func (v *Verifier) Verify(token string) (*models.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}

	role := models.Role(claims.Role)
	if role != models.RoleStreamer {
		role = models.RoleBuyer
	}

	return &models.User{
		ID:       claims.Subject,
		Name:     claims.Name,
		Avatar:   claims.Avatar,
		Role:     role,
		ShopName: claims.ShopName,
	}, nil
}

// Mint signs an access token for the given identity. Used by the dev
// token tool and tests.
func (v *Verifier) Mint(u *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:     u.Name,
		Avatar:   u.Avatar,
		Role:     string(u.Role),
		ShopName: u.ShopName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
