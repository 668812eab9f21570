package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(middleware gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/probe", middleware, func(c *gin.Context) {
		id, _ := GetClientID(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	router := newRouter(JWTMiddleware(testSecret, "nutriscan"))
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "kiosk-7",
		Audience:  jwt.ClaimStrings{"nutriscan"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS256, []byte(testSecret))

	resp := serve(router, "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Body.String() != "kiosk-7" {
		t.Fatalf("expected client id in context, got %q", resp.Body.String())
	}
}

func TestJWTMiddlewareRejections(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "kiosk-7", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "kiosk-7", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	noSubject := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"empty token":    "Bearer ",
		"wrong secret":   "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte("other")),
		"expired":        "Bearer " + signToken(t, expired, jwt.SigningMethodHS256, []byte(testSecret)),
		"no subject":     "Bearer " + signToken(t, noSubject, jwt.SigningMethodHS256, []byte(testSecret)),
		"wrong audience": "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte(testSecret)),
	}

	router := newRouter(JWTMiddleware(testSecret, "nutriscan"))
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			if resp := serve(router, header); resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
			}
		})
	}
}

func TestMiddlewareWithoutSecretPassesThrough(t *testing.T) {
	router := newRouter(Middleware("", ""))
	if resp := serve(router, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
}
