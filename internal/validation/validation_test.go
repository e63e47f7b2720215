package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestValidGameID(t *testing.T) {
	valid := []string{"tokencatcher", "lane-dash", "chain_wars2", "a1"}
	for _, id := range valid {
		if !ValidGameID(id) {
			t.Errorf("ValidGameID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "A", "Token", "-dash", "game with spaces",
		strings.Repeat("x", 33), "émoji"}
	for _, id := range invalid {
		if ValidGameID(id) {
			t.Errorf("ValidGameID(%q) = true, want false", id)
		}
	}
}

func TestValidSessionID(t *testing.T) {
	if !ValidSessionID("0123456789abcdef0123456789abcdef") {
		t.Error("well-formed session id rejected")
	}

	invalid := []string{
		"",
		"0123456789ABCDEF0123456789ABCDEF",  // uppercase
		"0123456789abcdef0123456789abcde",   // 31 chars
		"0123456789abcdef0123456789abcdef0", // 33 chars
		"0123456789abcdeg0123456789abcdef",  // non-hex
	}
	for _, id := range invalid {
		if ValidSessionID(id) {
			t.Errorf("ValidSessionID(%q) = true, want false", id)
		}
	}
}

func TestValidActionType(t *testing.T) {
	valid := []string{"jump", "lane_left", "combo.finish", "Shot-2"}
	for _, a := range valid {
		if !ValidActionType(a) {
			t.Errorf("ValidActionType(%q) = false, want true", a)
		}
	}

	invalid := []string{"", "_lead", "has space", strings.Repeat("x", 65)}
	for _, a := range invalid {
		if ValidActionType(a) {
			t.Errorf("ValidActionType(%q) = true, want false", a)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestSessionIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sessions/:id", SessionIDParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/sessions/0123456789abcdef0123456789abcdef", nil))
	if w.Code != http.StatusOK {
		t.Errorf("well-formed id: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/sessions/bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed id: expected 400, got %d", w.Code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", strings.NewReader("tiny")))
	if w.Code != http.StatusOK {
		t.Errorf("small body: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: expected 413, got %d", w.Code)
	}
}
