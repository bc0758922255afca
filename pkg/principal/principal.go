// Package principal carries the caller of a trigger through a context and resolves it from
// HTTP requests.
package principal

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const principalContextKey = ctxKey("principal")

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrMissingBearerToken = errors.New("missing bearer token")
	ErrMissingTenant      = errors.New("missing tenant")
)

// Principal is the identity a trigger runs as.
type Principal struct {
	TenantID string
	UserID   string
	Roles    []string
}

// NewContext injects p into the parent context.
func NewContext(parent context.Context, p *Principal) context.Context {
	return context.WithValue(parent, principalContextKey, p)
}

// FromContext extracts the Principal from ctx (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil, false
	}
	return p, true
}

// Authenticator resolves the principal of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

// HeaderAuthenticator trusts the X-Tenant-ID and X-User-ID headers. Use it only behind a
// gateway that sets them.
type HeaderAuthenticator struct{}

var _ Authenticator = HeaderAuthenticator{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	return &Principal{
		TenantID: tenantID,
		UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
	}, nil
}

// Claims are the claims of a topicflow token.
type Claims struct {
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 bearer tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

var _ Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(secret, issuer, audience string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("invalid auth configuration, please specify a jwt secret")
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return nil, ErrMissingBearerToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenant
	}

	return &Principal{TenantID: claims.TenantID, UserID: claims.Subject, Roles: claims.Roles}, nil
}

// Sign issues a token for p that expires at registered.ExpiresAt. Meant for tooling and tests.
func (a *JWTAuthenticator) Sign(p *Principal, registered jwt.RegisteredClaims) (string, error) {
	registered.Subject = p.UserID
	if a.issuer != "" && registered.Issuer == "" {
		registered.Issuer = a.issuer
	}
	if a.audience != "" && len(registered.Audience) == 0 {
		registered.Audience = jwt.ClaimStrings{a.audience}
	}
	claims := &Claims{TenantID: p.TenantID, Roles: p.Roles, RegisteredClaims: registered}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
