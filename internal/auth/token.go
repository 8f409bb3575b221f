package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
)

// DefaultTokenTTL is how long a minted token is reused.
const DefaultTokenTTL = time.Hour

// TokenSource yields the bearer token used against the WebUI API: a fixed
// service token when configured, else a per-user HS256 token signed with the
// host's secret.
type TokenSource struct {
	static string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	cache  *ttlcache.Cache[string, string]
}

type TokenOption func(*TokenSource)

// WithNow overrides the clock used for token claims.
func WithNow(now func() time.Time) TokenOption {
	return func(s *TokenSource) { s.now = now }
}

func NewTokenSource(static, secret string, ttl time.Duration, opts ...TokenOption) *TokenSource {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenSource{
		static: static,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenFor returns the token for user. An empty string means no
// Authorization header should be sent.
func (s *TokenSource) TokenFor(user *domain.User) (string, error) {
	if s == nil {
		return "", nil
	}
	if s.static != "" {
		return s.static, nil
	}
	id := user.UserID()
	if id == "" || len(s.secret) == 0 {
		return "", nil
	}
	if item := s.cache.Get(id); item != nil {
		return item.Value(), nil
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  id,
		"iat": now.Unix(),
		"exp": now.Add(2 * s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.cache.Set(id, signed, ttlcache.DefaultTTL)
	return signed, nil
}

// Len reports the number of cached minted tokens.
func (s *TokenSource) Len() int {
	return s.cache.Len()
}
