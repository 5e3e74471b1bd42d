package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Claims), args.Error(1)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token allows request", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		auth := NewAuthMiddleware(mockValidator, logger)

		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "learner-1"}}
		mockValidator.On("ValidateToken", mock.Anything, "valid-token").Return(claims, nil)

		handler := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			extracted := GetClaimsFromContext(r.Context())
			require.NotNil(t, extracted)
			assert.Equal(t, "learner-1", extracted.Subject)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockValidator.AssertExpectations(t)
	})

	t.Run("missing token", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		handler := NewAuthMiddleware(mockValidator, logger).RequireAuth(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockValidator.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	})

	t.Run("rejected token", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		mockValidator.On("ValidateToken", mock.Anything, "bad").Return(nil, errors.New("signature is invalid"))
		handler := NewAuthMiddleware(mockValidator, logger).RequireAuth(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid or expired token")
	})

	t.Run("disabled auth passes through", func(t *testing.T) {
		auth := NewAuthMiddleware(nil, logger)
		assert.False(t, auth.Enabled())

		w := httptest.NewRecorder()
		auth.RequireAuth(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		claims         *Claims
		expectedStatus int
	}{
		{"has role", &Claims{Roles: []string{"learner", "admin"}}, http.StatusOK},
		{"missing role", &Claims{Roles: []string{"learner"}}, http.StatusForbidden},
		{"no claims", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(new(MockTokenValidator), logger).RequireRole("admin")(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		authHeader    string
		expectedToken string
	}{
		{"Bearer valid-token-123", "valid-token-123"},
		{"bearer valid-token-123", "valid-token-123"},
		{"", ""},
		{"Bearertoken", ""},
		{"Basic token", ""},
		{"Bearer ", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if tt.authHeader != "" {
			req.Header.Set("Authorization", tt.authHeader)
		}
		assert.Equal(t, tt.expectedToken, extractBearerToken(req), tt.authHeader)
	}
}

func TestHMACValidator(t *testing.T) {
	ctx := context.Background()
	v := NewHMACValidator("s3cret", "lingotube")

	t.Run("round trip", func(t *testing.T) {
		token, err := v.Sign("learner-1", []string{"admin"}, time.Hour)
		require.NoError(t, err)

		claims, err := v.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "learner-1", claims.Subject)
		assert.True(t, claims.HasRole("admin"))
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Sign("learner-1", nil, -time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewHMACValidator("other", "lingotube").Sign("learner-1", nil, time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewHMACValidator("s3cret", "someone-else").Sign("learner-1", nil, time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRequestLogger(t *testing.T) {
	handler := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
