package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenSource supplies the bearer token attached to every request. The
// session layer owns credential lifecycle; the adapter only consumes tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AuthRedirectFunc receives 401/403 statuses so the session layer can route
// the user to re-authentication. Invoked out of band; the typed error is
// still returned to the caller.
type AuthRedirectFunc func(ctx context.Context, statusCode int)

var errNoToken = errors.New("transport: token source returned an empty token")

// StaticTokenSource returns a fixed bearer token.
type StaticTokenSource struct {
	value string
}

// NewStaticTokenSource wraps a fixed token string.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{value: strings.TrimSpace(token)}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(context.Context) (string, error) {
	if s == nil || s.value == "" {
		return "", errNoToken
	}
	return s.value, nil
}

// RefreshFunc obtains a fresh bearer token from the session layer.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshingTokenSource caches a JWT and refreshes it shortly before the
// embedded exp claim elapses. The claim is read without signature
// verification: the client never validates tokens, it only schedules
// refreshes.
type RefreshingTokenSource struct {
	mu      sync.Mutex
	refresh RefreshFunc
	skew    time.Duration
	now     func() time.Time

	token   string
	expires time.Time
}

const defaultRefreshSkew = 30 * time.Second

// NewRefreshingTokenSource builds a source backed by the given refresh
// callback. A non-positive skew falls back to 30s.
func NewRefreshingTokenSource(refresh RefreshFunc, skew time.Duration) (*RefreshingTokenSource, error) {
	if refresh == nil {
		return nil, errors.New("transport: refresh func is required")
	}
	if skew <= 0 {
		skew = defaultRefreshSkew
	}
	return &RefreshingTokenSource{
		refresh: refresh,
		skew:    skew,
		now:     time.Now,
	}, nil
}

// Token implements TokenSource, refreshing when the cached token is absent
// or about to expire.
func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expires.IsZero() || s.now().Add(s.skew).Before(s.expires)) {
		return s.token, nil
	}

	token, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errNoToken
	}

	s.token = token
	s.expires = tokenExpiry(token)
	return s.token, nil
}

// tokenExpiry extracts the exp claim; zero when absent or unparseable, which
// means the token is reused until the session layer rotates it.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
