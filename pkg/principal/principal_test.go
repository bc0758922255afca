package principal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	p := &Principal{TenantID: "t1", UserID: "u1"}
	got, ok := FromContext(NewContext(context.Background(), p))
	require.True(t, ok)
	require.Same(t, p, got)
}

func TestHeaderAuthenticator(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	_, err := HeaderAuthenticator{}.Authenticate(r)
	require.ErrorIs(t, err, ErrMissingTenant)

	r.Header.Set("X-Tenant-ID", "t1")
	r.Header.Set("X-User-ID", "u1")
	p, err := HeaderAuthenticator{}.Authenticate(r)
	require.NoError(t, err)
	require.Equal(t, &Principal{TenantID: "t1", UserID: "u1"}, p)
}

func TestJWTAuthenticator(t *testing.T) {
	a, err := NewJWTAuthenticator("s3cret", "topicflow", "api")
	require.NoError(t, err)

	valid := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	request := func(token string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return r
	}

	t.Run("valid", func(t *testing.T) {
		token, err := a.Sign(&Principal{TenantID: "t1", UserID: "u1", Roles: []string{"admin"}}, valid)
		require.NoError(t, err)

		p, err := a.Authenticate(request(token))
		require.NoError(t, err)
		require.Equal(t, &Principal{TenantID: "t1", UserID: "u1", Roles: []string{"admin"}}, p)
	})

	t.Run("missing_token", func(t *testing.T) {
		_, err := a.Authenticate(request(""))
		require.ErrorIs(t, err, ErrMissingBearerToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := a.Sign(&Principal{TenantID: "t1"}, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
		require.NoError(t, err)
		_, err = a.Authenticate(request(token))
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		other, err := NewJWTAuthenticator("other", "topicflow", "api")
		require.NoError(t, err)
		token, err := other.Sign(&Principal{TenantID: "t1"}, valid)
		require.NoError(t, err)
		_, err = a.Authenticate(request(token))
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("wrong_audience", func(t *testing.T) {
		other, err := NewJWTAuthenticator("s3cret", "topicflow", "elsewhere")
		require.NoError(t, err)
		token, err := other.Sign(&Principal{TenantID: "t1"}, valid)
		require.NoError(t, err)
		_, err = a.Authenticate(request(token))
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("missing_tenant", func(t *testing.T) {
		token, err := a.Sign(&Principal{UserID: "u1"}, valid)
		require.NoError(t, err)
		_, err = a.Authenticate(request(token))
		require.ErrorIs(t, err, ErrMissingTenant)
	})

	t.Run("secret_required", func(t *testing.T) {
		_, err := NewJWTAuthenticator("", "", "")
		require.Error(t, err)
	})
}
