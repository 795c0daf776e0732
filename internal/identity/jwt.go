package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KingHarry001/portfolio/pkg/middleware"
)

// ErrInvalidToken wraps every token rejection.
var ErrInvalidToken = errors.New("invalid access token")

// tokenClaims is the shape of the provider's access tokens. The role lives in
// app_metadata, which only the provider's admin API can write; a top-level
// role claim is accepted as a fallback.
type tokenClaims struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 access tokens signed with the provider's
// shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTValidator creates a validator. An empty issuer skips the iss check.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// Validate parses and verifies token. Its signature matches
// middleware.TokenValidator.
func (v *JWTValidator) Validate(token string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.AppMetadata.Role
	if role == "" {
		role = claims.Role
	}

	return &middleware.Claims{
		UserID: subject,
		Email:  claims.Email,
		Role:   NormalizeRole(role),
	}, nil
}
