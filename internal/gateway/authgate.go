package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/credential"
	"go.uber.org/zap"
)

// contextKeyIdentity は検証済みID情報を保持するGinコンテキストのキー。
const contextKeyIdentity = "identity"

// Verifier はBearerトークンを検証してID情報を返す。
type Verifier interface {
	Verify(token string) (credential.Identity, error)
}

// publicKey は公開ルートの集合のキー。
type publicKey struct {
	path   string
	method string
}

// AuthGate は公開ルート以外のリクエストにBearerトークンを要求する。
type AuthGate struct {
	// public は認証不要なパスとメソッドの組。
	public map[publicKey]struct{}
	// verifier はトークンの検証器。
	verifier Verifier
	// metrics は拒否数を記録する。
	metrics *Metrics
	// logger は検証失敗を記録する。
	logger *zap.Logger
}

// NewAuthGate は新しいAuthGateを生成する。
func NewAuthGate(public []PublicRoute, verifier Verifier, metrics *Metrics, logger *zap.Logger) *AuthGate {
	set := make(map[publicKey]struct{}, len(public))
	for _, p := range public {
		set[publicKey{path: p.Path, method: strings.ToUpper(p.Method)}] = struct{}{}
	}
	return &AuthGate{
		public:   set,
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// IsPublic はパスとメソッドの組が公開ルートかどうかを判定する。
// 両方の完全一致でのみ公開とみなす。
func (g *AuthGate) IsPublic(path, method string) bool {
	_, ok := g.public[publicKey{path: path, method: method}]
	return ok
}

// Middleware は認証ゲートのミドルウェアを返す。
func (g *AuthGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.IsPublic(c.Request.URL.Path, c.Request.Method) {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			g.metrics.reject(apiresponse.CodeUnauthorized)
			apiresponse.Abort(c, http.StatusUnauthorized, apiresponse.CodeUnauthorized, "認証が必要です")
			return
		}

		identity, err := g.verifier.Verify(token)
		if err != nil {
			msg := "無効なトークンです"
			if errors.Is(err, credential.ErrExpired) {
				msg = "トークンの有効期限が切れています"
			}
			g.logger.Info("トークンの検証に失敗",
				zap.String("request_id", CorrelationID(c)),
				zap.Error(err),
			)
			g.metrics.reject(apiresponse.CodeInvalidToken)
			apiresponse.Abort(c, http.StatusUnauthorized, apiresponse.CodeInvalidToken, msg)
			return
		}

		c.Set(contextKeyIdentity, identity)
		c.Next()
	}
}

// IdentityFrom は認証ゲートが検証したID情報を返す。
// 公開ルートや未検証のリクエストではfalseを返す。
func IdentityFrom(c *gin.Context) (credential.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return credential.Identity{}, false
	}
	identity, ok := v.(credential.Identity)
	return identity, ok
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
