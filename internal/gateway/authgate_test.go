package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/credential"
	"go.uber.org/zap/zaptest"
)

// stubVerifier は固定の結果を返すVerifier。
type stubVerifier struct {
	identity credential.Identity
	err      error
}

func (v stubVerifier) Verify(string) (credential.Identity, error) {
	return v.identity, v.err
}

// TestAuthGateIsPublic は公開ルート判定のテスト。
func TestAuthGateIsPublic(t *testing.T) {
	t.Parallel()

	gate := NewAuthGate(DefaultConfig().PublicRoutes, stubVerifier{}, nil, zaptest.NewLogger(t))

	tests := []struct {
		path   string
		method string
		want   bool
	}{
		{path: "/v1/users/register", method: http.MethodPost, want: true},
		{path: "/v1/users/login", method: http.MethodPost, want: true},
		{path: "/v1/users/login", method: http.MethodGet, want: false},
		{path: "/v1/users/login/", method: http.MethodPost, want: false},
		{path: "/v1/users/profile", method: http.MethodGet, want: false},
		{path: "/v1/orders", method: http.MethodPost, want: false},
	}
	for _, tt := range tests {
		if got := gate.IsPublic(tt.path, tt.method); got != tt.want {
			t.Errorf("IsPublic(%q, %q): got %v, want %v", tt.path, tt.method, got, tt.want)
		}
	}
}

// TestAuthGateMiddleware は認証ゲートのミドルウェアのテスト。
func TestAuthGateMiddleware(t *testing.T) {
	t.Parallel()

	newRouter := func(v Verifier) *gin.Engine {
		gate := NewAuthGate([]PublicRoute{{Path: "/public", Method: http.MethodGet}}, v, nil, zaptest.NewLogger(t))
		router := gin.New()
		router.Use(gate.Middleware())
		handler := func(c *gin.Context) {
			identity, ok := IdentityFrom(c)
			c.JSON(http.StatusOK, gin.H{"authenticated": ok, "subject": identity.SubjectID})
		}
		router.GET("/public", handler)
		router.GET("/private", handler)
		return router
	}

	t.Run("検証に成功するとID情報をコンテキストに設定する", func(t *testing.T) {
		t.Parallel()

		router := newRouter(stubVerifier{identity: credential.Identity{SubjectID: "user-1", Roles: []string{}}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer token")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if want := `{"authenticated":true,"subject":"user-1"}`; w.Body.String() != want {
			t.Errorf("ボディ: got %s, want %s", w.Body.String(), want)
		}
	})

	t.Run("公開ルートではID情報を設定しない", func(t *testing.T) {
		t.Parallel()

		router := newRouter(stubVerifier{identity: credential.Identity{SubjectID: "user-1"}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		req.Header.Set("Authorization", "Bearer token")
		router.ServeHTTP(w, req)

		if want := `{"authenticated":false,"subject":""}`; w.Body.String() != want {
			t.Errorf("ボディ: got %s, want %s", w.Body.String(), want)
		}
	})

	t.Run("空のトークンは401 UNAUTHORIZEDを返す", func(t *testing.T) {
		t.Parallel()

		router := newRouter(stubVerifier{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer   ")
		router.ServeHTTP(w, req)

		assertErrorCode(t, w, http.StatusUnauthorized, apiresponse.CodeUnauthorized)
	})

	t.Run("検証に失敗すると401 INVALID_TOKENを返す", func(t *testing.T) {
		t.Parallel()

		for _, err := range []error{credential.ErrInvalid, credential.ErrExpired, errors.New("unknown")} {
			router := newRouter(stubVerifier{err: err})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			req.Header.Set("Authorization", "Bearer token")
			router.ServeHTTP(w, req)

			assertErrorCode(t, w, http.StatusUnauthorized, apiresponse.CodeInvalidToken)
		}
	})
}

// TestBearerToken はBearerトークンの取り出しのテスト。
func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "Bearer  abc ", want: "abc", ok: true},
		{header: "Bearer ", ok: false},
		{header: "bearer abc", ok: false},
		{header: "Basic abc", ok: false},
		{header: "abc", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q): got (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
