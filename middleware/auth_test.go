// middleware/auth_test.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "middleware-test-logs")
	if err != nil {
		panic(err)
	}
	logger.InitLogger(dir)
	gin.SetMode(gin.TestMode)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type stubAuthService struct {
	validate func(tenantID, token string) (*model.AccessClaims, error)
	extend   func(tenantID, sessionID string) (*model.Session, error)
}

func (s *stubAuthService) Login(ctx context.Context, tenantID, userID string) (*model.Credentials, error) {
	return nil, nil
}

func (s *stubAuthService) Refresh(ctx context.Context, tenantID, tokenID string) (*model.Credentials, error) {
	return nil, nil
}

func (s *stubAuthService) Revoke(ctx context.Context, tenantID, tokenID string) error {
	return nil
}

func (s *stubAuthService) ValidateAccessToken(ctx context.Context, tenantID, token string) (*model.AccessClaims, error) {
	return s.validate(tenantID, token)
}

func (s *stubAuthService) ExtendSession(ctx context.Context, tenantID, sessionID string) (*model.Session, error) {
	return s.extend(tenantID, sessionID)
}

func validClaims() *model.AccessClaims {
	return &model.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		TenantID:         "t1",
		SessionID:        "s1",
	}
}

func authRequest(svc *stubAuthService, tenant, authorization string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(Auth(svc))
	r.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString("userID"),
			"tenant_id": c.GetString("tenantID"),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAcceptsValidToken(t *testing.T) {
	svc := &stubAuthService{
		validate: func(tenantID, token string) (*model.AccessClaims, error) {
			assert.Equal(t, "t1", tenantID)
			assert.Equal(t, "jwt", token)
			return validClaims(), nil
		},
		extend: func(tenantID, sessionID string) (*model.Session, error) {
			assert.Equal(t, "s1", sessionID)
			return &model.Session{SessionID: sessionID}, nil
		},
	}
	w := authRequest(svc, "t1", "Bearer jwt")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestAuthRequiresTenantHeader(t *testing.T) {
	w := authRequest(&stubAuthService{}, "", "Bearer jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequiresBearerToken(t *testing.T) {
	w := authRequest(&stubAuthService{}, "t1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = authRequest(&stubAuthService{}, "t1", "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	svc := &stubAuthService{
		validate: func(string, string) (*model.AccessClaims, error) {
			return nil, core_errors.ErrInvalidAccessToken
		},
	}
	w := authRequest(svc, "t1", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsExpiredSession(t *testing.T) {
	svc := &stubAuthService{
		validate: func(string, string) (*model.AccessClaims, error) {
			return validClaims(), nil
		},
		extend: func(string, string) (*model.Session, error) {
			return nil, core_errors.ErrSessionExpired
		},
	}
	w := authRequest(svc, "t1", "Bearer jwt")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Session expired")
}

func TestAuthToleratesExtensionHiccup(t *testing.T) {
	svc := &stubAuthService{
		validate: func(string, string) (*model.AccessClaims, error) {
			return validClaims(), nil
		},
		extend: func(string, string) (*model.Session, error) {
			return nil, errors.New("store timeout")
		},
	}
	w := authRequest(svc, "t1", "Bearer jwt")

	assert.Equal(t, http.StatusOK, w.Code,
		"a store hiccup on the extension path must not reject the request")
}
