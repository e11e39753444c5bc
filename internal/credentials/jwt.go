package credentials

import (
	"context"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTProvider mints HMAC-signed tokens for the invocation service. The
// subject is the external identity and the connector id travels as a claim.
type JWTProvider struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration

	nowFunc func() time.Time
}

// ConnectorClaims are the claims carried by tokens minted by JWTProvider.
type ConnectorClaims struct {
	Connector string `json:"connector,omitempty"`
	jwtlib.RegisteredClaims
}

func NewJWTProvider(key []byte, issuer, audience string, ttl time.Duration) (*JWTProvider, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &JWTProvider{
		Key:      key,
		Issuer:   issuer,
		Audience: audience,
		TTL:      ttl,
		nowFunc:  time.Now,
	}, nil
}

func (p *JWTProvider) Issue(_ context.Context, scope Scope) (Credential, error) {
	now := p.nowFunc()
	exp := now.Add(p.TTL)

	claims := ConnectorClaims{
		Connector: scope.ConnectorID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.Issuer,
			Subject:   scope.Identity,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}
	if p.Audience != "" {
		claims.Audience = jwtlib.ClaimStrings{p.Audience}
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(p.Key)
	if err != nil {
		return Credential{}, fmt.Errorf("signing credential: %w", err)
	}
	return Credential{Token: signed, ExpiresAt: exp}, nil
}
