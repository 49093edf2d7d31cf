package delivery

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestParseAccountID(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseAccountID(sign(t, jwt.MapClaims{"account_id": "acc-1", "exp": exp}, "s"), "s")
	if err != nil || id != "acc-1" {
		t.Fatalf("expected acc-1, got %q %v", id, err)
	}
	id, err = ParseAccountID(sign(t, jwt.MapClaims{"sub": "acc-2", "exp": exp}, "s"), "s")
	if err != nil || id != "acc-2" {
		t.Fatalf("expected acc-2 from sub, got %q %v", id, err)
	}
	if _, err := ParseAccountID(sign(t, jwt.MapClaims{"sub": "acc-3"}, "other"), "s"); err == nil {
		t.Error("expected signature failure")
	}
	if _, err := ParseAccountID(sign(t, jwt.MapClaims{"sub": "acc", "exp": time.Now().Add(-time.Hour).Unix()}, "s"), "s"); err == nil {
		t.Error("expected expiry failure")
	}
	if _, err := ParseAccountID(sign(t, jwt.MapClaims{"exp": exp}, "s"), "s"); err == nil {
		t.Error("expected missing subject failure")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware("s"), func(c *gin.Context) {
		c.String(http.StatusOK, AccountID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"sub": "acc-9"}, "s"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "acc-9" {
		t.Errorf("expected 200 acc-9, got %d %q", w.Code, w.Body.String())
	}
}
