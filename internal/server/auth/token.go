// Package auth implements stateless bearer tokens and password hashing.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = time.Hour

	ClaimSubject = "sub"
	ClaimExpires = "exp"
)

// TokenService signs claim maps into HS256 tokens and verifies them.
// Validity is derived from the signature and the exp claim alone.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithLeeway tolerates clock skew when checking exp. Default is none.
func WithLeeway(d time.Duration) TokenOption {
	return func(s *TokenService) { s.leeway = d }
}

func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign copies claims, sets exp to now+ttl (overwriting any caller value)
// and returns the signed token.
func (s *TokenService) Sign(claims map[string]any) (string, error) {
	c := make(jwt.MapClaims, len(claims)+1)
	maps.Copy(c, claims)
	c[ClaimExpires] = s.now().Add(s.ttl).Unix()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature first and exp second. It returns
// common.ErrTokenExpired for a genuine but stale token and
// common.ErrBadSignature for anything else.
func (s *TokenService) Verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", common.ErrBadSignature, err)
	}

	return claims, nil
}

// SubjectID extracts the numeric account id stored under sub.
func SubjectID(claims jwt.MapClaims) (int64, error) {
	switch v := claims[ClaimSubject].(type) {
	case float64:
		if v != math.Trunc(v) {
			break
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("%w: missing or malformed %s claim", common.ErrInvalidToken, ClaimSubject)
}
