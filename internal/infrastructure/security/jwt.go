package security

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ServiceAudience identifies tokens minted by the console for the recovery service.
const ServiceAudience = "cart-recovery"

// ServiceClaims are carried by console service tokens.
type ServiceClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenSource mints HS256 service tokens and reuses one until it is close to
// expiry.
type TokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source. An empty secret disables signing and
// Token returns "".
func NewTokenSource(secret, subject string, ttl time.Duration) *TokenSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenSource{
		secret:  []byte(secret),
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token returns a valid bearer token.
func (s *TokenSource) Token() (string, error) {
	if len(s.secret) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.token != "" && now.Add(s.ttl/5).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := ServiceClaims{
		Scope: "recovery:console",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        GenerateULID(),
			Subject:   s.subject,
			Audience:  jwt.ClaimStrings{ServiceAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}

// ValidateServiceToken parses and verifies a service token.
func ValidateServiceToken(tokenString, secret string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.VerifyAudience(ServiceAudience, true) {
		return nil, errors.New("token audience mismatch")
	}
	return claims, nil
}
