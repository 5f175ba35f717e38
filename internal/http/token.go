package http

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/appointment-desk/internal/application"
)

var (
	// ErrInvalidToken is returned for malformed, unsigned or wrongly signed tokens.
	ErrInvalidToken = errors.New("http: invalid token")
	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("http: token expired")
)

// tokenLeeway tolerates clock skew between the issuer and this service.
const tokenLeeway = 30 * time.Second

// AccessClaims are the claims read from an HS256 access token. Subject carries the user id.
type AccessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens issued by the identity provider.
type JWTVerifier struct {
	secret   []byte
	adminIDs []string
	now      func() time.Time
}

// NewJWTVerifier returns a verifier for tokens signed with secret. Subjects listed in
// adminUserIDs are administrators regardless of their role claim.
func NewJWTVerifier(secret string, adminUserIDs []string, now func() time.Time) *JWTVerifier {
	if now == nil {
		now = time.Now
	}
	admins := make([]string, 0, len(adminUserIDs))
	for _, id := range adminUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins = append(admins, id)
		}
	}
	return &JWTVerifier{secret: []byte(secret), adminIDs: admins, now: now}
}

// VerifyToken implements TokenVerifier.
func (v *JWTVerifier) VerifyToken(ctx context.Context, token string) (application.Principal, error) {
	if v == nil || len(v.secret) == 0 {
		return application.Principal{}, fmt.Errorf("token verifier not configured")
	}

	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return application.Principal{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return application.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return application.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return application.Principal{
		UserID:  subject,
		IsAdmin: strings.EqualFold(claims.Role, "admin") || slices.Contains(v.adminIDs, subject),
	}, nil
}

// SignToken issues an HS256 token. Used by tooling and tests that act as the identity
// provider.
func SignToken(secret string, claims AccessClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
