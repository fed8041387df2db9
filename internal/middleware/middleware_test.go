package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/service"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: testSecret, JWTExpiry: time.Hour}, nil, nil)
}

func signToken(t *testing.T, claims service.Claims, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func claimsFor(tt service.TokenType, exp time.Time, perms ...model.Permission) service.Claims {
	ps := make([]string, len(perms))
	for i, p := range perms {
		ps[i] = string(p)
	}
	return service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "jti", ExpiresAt: jwt.NewNumericDate(exp)},
		TokenType:        tt,
		UserID:           5,
		Permissions:      ps,
	}
}

func serve(h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	h = append(h, func(c *gin.Context) {
		if cl := GetClaims(c); cl != nil {
			c.String(http.StatusOK, "user %d", cl.UserID)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/x", h...)
	return r
}

func TestRequireStudentJWT(t *testing.T) {
	auth := testAuth()
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"wrong secret", "Bearer " + signToken(t, claimsFor(service.TokenTypeStudent, future), "other"), "", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "Bearer " + signToken(t, claimsFor(service.TokenTypeStudent, time.Now().Add(-time.Minute)), testSecret), "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"staff token", "Bearer " + signToken(t, claimsFor(service.TokenTypeAdmin, future), testSecret), "", http.StatusForbidden, "STUDENT_ACCESS_ONLY"},
		{"student header", "Bearer " + signToken(t, claimsFor(service.TokenTypeStudent, future), testSecret), "", http.StatusOK, ""},
		{"student query", "", signToken(t, claimsFor(service.TokenTypeStudent, future), testSecret), http.StatusOK, ""},
	}

	r := serve(RequireStudentJWT(auth))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/x"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.code != "" && !strings.Contains(w.Body.String(), tc.code) {
				t.Errorf("body %s does not mention %s", w.Body.String(), tc.code)
			}
		})
	}
}

func TestRequireAdminAndAnyJWT(t *testing.T) {
	auth := testAuth()
	future := time.Now().Add(time.Hour)
	student := "Bearer " + signToken(t, claimsFor(service.TokenTypeStudent, future), testSecret)
	staff := "Bearer " + signToken(t, claimsFor(service.TokenTypeAdmin, future), testSecret)

	do := func(r *gin.Engine, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	admin := serve(RequireAdminJWT(auth))
	if w := do(admin, student); w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "ADMIN_ACCESS_ONLY") {
		t.Errorf("student on admin route: %d %s", w.Code, w.Body.String())
	}
	if w := do(admin, staff); w.Code != http.StatusOK {
		t.Errorf("staff on admin route: %d", w.Code)
	}

	anyRole := serve(RequireAnyJWT(auth))
	for _, h := range []string{student, staff} {
		if w := do(anyRole, h); w.Code != http.StatusOK || w.Body.String() != "user 5" {
			t.Errorf("any route: %d %s", w.Code, w.Body.String())
		}
	}
	if w := do(anyRole, "Basic abc"); w.Code != http.StatusUnauthorized {
		t.Errorf("basic auth: %d", w.Code)
	}
}

func TestRequireStudentWSAuthIgnoresHeader(t *testing.T) {
	r := serve(RequireStudentWSAuth(testAuth()))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claimsFor(service.TokenTypeStudent, time.Now().Add(time.Hour)), testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	auth := testAuth()
	future := time.Now().Add(time.Hour)
	r := serve(RequireAdminJWT(auth), RequirePermission(model.PermissionQuestionsWrite))

	do := func(perms ...model.Permission) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claimsFor(service.TokenTypeAdmin, future, perms...), testSecret))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := do(model.PermissionQuestionsRead); got != http.StatusForbidden {
		t.Errorf("read-only staff: status = %d, want 403", got)
	}
	if got := do(model.PermissionQuestionsRead, model.PermissionQuestionsWrite); got != http.StatusOK {
		t.Errorf("writer: status = %d, want 200", got)
	}
}

func TestRequireAnyPermission(t *testing.T) {
	r := serve(func(c *gin.Context) {
		cl := claimsFor(service.TokenTypeAdmin, time.Now(), model.PermissionMonitorRead)
		c.Set(ContextKeyClaims, &cl)
	}, RequireAnyPermission(model.PermissionResultsRead, model.PermissionMonitorRead))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	r := serve(rl.Middleware())

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, 2*time.Second)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.take("10.0.0.1"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	ok, wait := rl.take("10.0.0.1")
	if ok {
		t.Fatal("third request allowed")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}
	if ok, _ := rl.take("10.0.0.2"); !ok {
		t.Error("other client was limited")
	}

	now = now.Add(time.Second)
	if ok, _ := rl.take("10.0.0.1"); !ok {
		t.Error("token did not refill")
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	r := serve(rl.Middleware())

	var w *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestCacheHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	serve(PrivateCache(60)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=60" {
		t.Errorf("Cache-Control = %q", got)
	}

	w = httptest.NewRecorder()
	serve(NoStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestBrotli(t *testing.T) {
	long := strings.Repeat("question review ", 200)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/long", func(c *gin.Context) { c.String(http.StatusCreated, long) })
	r.GET("/short", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })

	t.Run("large body is compressed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/long", nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
		if w.Header().Get("Content-Encoding") != "br" {
			t.Fatalf("Content-Encoding = %q, want br", w.Header().Get("Content-Encoding"))
		}
		body, err := io.ReadAll(brotli.NewReader(w.Body))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(body) != long {
			t.Error("decoded body differs")
		}
	})

	t.Run("small body is plain", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/short", nil)
		req.Header.Set("Accept-Encoding", "br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "tiny" {
			t.Fatalf("got encoding %q body %q", w.Header().Get("Content-Encoding"), w.Body.String())
		}
	})

	t.Run("client without br", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/long", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != long {
			t.Fatal("expected uncompressed body")
		}
	})
}
