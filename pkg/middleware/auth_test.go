package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// newGatedRouter は認証ミドルウェアを通した後に呼び出し元を返すルーターを生成する。
func newGatedRouter(v Verifier, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	group := router.Group("/")
	group.Use(Authenticate(v))
	group.Use(extra...)
	group.GET("/whoami", func(c *gin.Context) {
		p := GetPrincipal(c)
		fromCtx, ok := PrincipalFromContext(c.Request.Context())
		if !ok || fromCtx != p {
			c.String(http.StatusInternalServerError, "contextに呼び出し元が無い")
			return
		}
		c.String(http.StatusOK, p.Identity+":"+p.Role)
	})
	return router
}

// issue はテスト用のトークンを発行する。
func issue(t *testing.T, s *token.Service, identity, role string) string {
	t.Helper()
	tok, err := s.Issue(identity, role)
	if err != nil {
		t.Fatalf("テスト用トークンの発行に失敗: %v", err)
	}
	return tok
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens := token.NewService(testSecret, time.Hour)

	t.Run("有効なトークンで呼び出し元がコンテキストに設定されること", func(t *testing.T) {
		t.Parallel()

		router := newGatedRouter(tokens)
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "alice", "user"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := w.Body.String(); got != "alice:user" {
			t.Errorf("本文 = %q, want %q", got, "alice:user")
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "Authorizationヘッダーが無い", header: ""},
		{name: "Bearer形式ではない", header: "Basic dXNlcjpwYXNz"},
		{name: "トークンが空", header: "Bearer "},
		{name: "トークンが壊れている", header: "Bearer abc.def.ghi"},
		{name: "別の鍵で署名されている", header: "Bearer " + issue(t, token.NewService("other", time.Hour), "alice", "admin")},
	}
	for _, tt := range tests {
		t.Run(tt.name+"場合は401になること", func(t *testing.T) {
			t.Parallel()

			handlerCalled := false
			router := newGatedRouter(tokens, func(c *gin.Context) {
				handlerCalled = true
				c.Next()
			})
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if handlerCalled {
				t.Error("認証失敗後に後続のハンドラーが呼ばれた")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tokens := token.NewService(testSecret, time.Hour)

	t.Run("adminロールは通過できること", func(t *testing.T) {
		t.Parallel()

		router := newGatedRouter(tokens, RequireRole("admin"))
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "root", "admin"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("userロールは403になること", func(t *testing.T) {
		t.Parallel()

		router := newGatedRouter(tokens, RequireRole("admin"))
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tokens, "alice", "user"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("認証前に置かれた場合は403になること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// staticVerifier は固定のトークンだけを受け付けるVerifier。
type staticVerifier map[string][2]string

func (v staticVerifier) Identify(tokenString string) (string, string, error) {
	p, ok := v[tokenString]
	if !ok {
		return "", "", errors.New("未知のトークン")
	}
	return p[0], p[1], nil
}

func TestAuthenticateWithCustomVerifier(t *testing.T) {
	t.Parallel()

	v := staticVerifier{"opaque-1": {"carol", "admin"}}
	router := newGatedRouter(v, RequireRole("admin"))

	t.Run("独自のVerifierが返した呼び出し元が設定されること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer opaque-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK || w.Body.String() != "carol:admin" {
			t.Errorf("ステータスコード = %d, 本文 = %q", w.Code, w.Body.String())
		}
	})

	t.Run("独自のVerifierが拒否したトークンは401になること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer opaque-2")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
