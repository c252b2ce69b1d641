package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func setupIdentityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	SetJWTSecret("test-session-secret")

	r := gin.New()
	r.GET("/whoami", Identity(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return r
}

func TestIdentity_ValidSession(t *testing.T) {
	r := setupIdentityRouter()

	tok, err := GenerateSessionToken("user-1", "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"user_id":"user-1"}` {
		t.Errorf("Unexpected body: %s", body)
	}
}

func TestIdentity_MissingHeader(t *testing.T) {
	r := setupIdentityRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestIdentity_MalformedAndExpired(t *testing.T) {
	r := setupIdentityRouter()

	for _, header := range []string{"Bearer not-a-jwt", "Basic abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: expected 401, got %d", header, w.Code)
		}
	}

	expired, err := GenerateSessionToken("user-1", "user@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired session, got %d", w.Code)
	}
}
