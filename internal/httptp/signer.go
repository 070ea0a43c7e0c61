package httptp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer authenticates an outgoing request.
type Signer interface {
	Sign(ctx context.Context, req *http.Request) error
}

// JWTSigner attaches a freshly minted HS256 bearer token to every request.
type JWTSigner struct {
	key      []byte
	issuer   string
	subject  string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// JWTClaims configures the registered claims of minted tokens.
type JWTClaims struct {
	Issuer   string
	Subject  string
	Audience string
	// TTL is the token lifetime. Default: 5m
	TTL time.Duration
}

// NewJWTSigner creates a signer using key as the HMAC secret.
func NewJWTSigner(key []byte, claims JWTClaims) (*JWTSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("httptp: jwt signing key is empty")
	}
	if claims.TTL <= 0 {
		claims.TTL = 5 * time.Minute
	}
	return &JWTSigner{
		key:      key,
		issuer:   claims.Issuer,
		subject:  claims.Subject,
		audience: claims.Audience,
		ttl:      claims.TTL,
		now:      time.Now,
	}, nil
}

func (s *JWTSigner) Sign(_ context.Context, req *http.Request) error {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
