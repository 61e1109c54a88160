package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/infrastructure/auth"
	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
)

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: expiration,
		Issuer:                "test-issuer",
	})
}

type stubBlacklist struct {
	revoked map[string]bool
	err     error
}

func (b *stubBlacklist) AddToBlacklist(_ context.Context, jti string, _ time.Duration) error {
	b.revoked[jti] = true
	return nil
}

func (b *stubBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return b.revoked[jti], b.err
}

func jwtRouter(cfg JWTMiddlewareConfig) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/me", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		p, _ := c.Get(PrincipalKey)
		c.String(http.StatusOK, GetJWTUserID(c)+"|"+p.(tenancy.Principal).TenantID())
	})
	return router
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	userID := uuid.New()
	token, _, err := svc.GenerateAccessToken(auth.GenerateTokenInput{UserID: userID, Username: "asha", Tenant: "acme-corp"})
	require.NoError(t, err)

	expiredToken, _, err := newTestJWTService(-time.Minute).GenerateAccessToken(auth.GenerateTokenInput{UserID: userID})
	require.NoError(t, err)

	router := jwtRouter(DefaultJWTConfig(svc))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{"valid token", "/me", BearerPrefix + token, http.StatusOK, "", userID.String() + "|acme-corp"},
		{"missing header", "/me", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized, ""},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized, dto.ErrCodeUnauthorized, ""},
		{"empty bearer", "/me", BearerPrefix, http.StatusUnauthorized, dto.ErrCodeUnauthorized, ""},
		{"garbage token", "/me", BearerPrefix + "garbage", http.StatusUnauthorized, dto.ErrCodeTokenInvalid, ""},
		{"expired token", "/me", BearerPrefix + expiredToken, http.StatusUnauthorized, dto.ErrCodeTokenExpired, ""},
		{"skip path", "/health", "", http.StatusOK, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
			}
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestJWTAuthMiddleware_Optional(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	cfg := DefaultJWTConfig(svc)
	cfg.Optional = true
	router := jwtRouter(cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+"garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a bad token is rejected even when auth is optional")
}

func TestJWTAuthMiddleware_Blacklist(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	token, _, err := svc.GenerateAccessToken(auth.GenerateTokenInput{UserID: uuid.New()})
	require.NoError(t, err)
	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	send := func(router *gin.Engine) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("revoked", func(t *testing.T) {
		cfg := DefaultJWTConfig(svc)
		cfg.TokenBlacklist = &stubBlacklist{revoked: map[string]bool{claims.ID: true}}
		w := send(jwtRouter(cfg))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, decodeError(t, w).Code)
	})

	t.Run("blacklist unavailable fails open", func(t *testing.T) {
		cfg := DefaultJWTConfig(svc)
		cfg.TokenBlacklist = &stubBlacklist{revoked: map[string]bool{}, err: errors.New("redis down")}
		assert.Equal(t, http.StatusOK, send(jwtRouter(cfg)).Code)
	})
}
