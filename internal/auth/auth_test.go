package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/testportal-service/internal/models"
)

const testSecret = "test-secret"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Sign("student-1", models.RoleStudent, time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "student-1", identity.UserID)
	assert.Equal(t, models.RoleStudent, identity.Role)
	assert.Equal(t, models.Caller{UserID: "student-1", Role: models.RoleStudent}, identity.Caller())
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTVerifier("other").Sign("u", models.RoleTeacher, time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Sign("u", models.RoleTeacher, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID: "u",
			Role:   "janitor",
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func newRouter(v TokenVerifier, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{Middleware(v)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, caller.UserID)
	})
	r.GET("/whoami", handlers...)
	return r
}

func TestMiddleware(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	studentToken, err := v.Sign("s1", models.RoleStudent, time.Hour)
	require.NoError(t, err)
	teacherToken, err := v.Sign("t1", models.RoleTeacher, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		roles  []models.UserRole
		status int
		body   string
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized},
		{name: "malformed header", header: "Token " + studentToken, status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + studentToken, status: http.StatusOK, body: "s1"},
		{name: "role denied", header: "Bearer " + studentToken, roles: []models.UserRole{models.RoleTeacher, models.RoleAdmin}, status: http.StatusForbidden},
		{name: "role allowed", header: "Bearer " + teacherToken, roles: []models.UserRole{models.RoleTeacher, models.RoleAdmin}, status: http.StatusOK, body: "t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(v, tt.roles...).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
