package middleware

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// gatewayからバックエンドへ渡す信頼済みヘッダー。
// クライアントが同名のヘッダーを送ってきても、gatewayが必ず上書きする。
const (
	// HeaderRequestID は相関IDを伝播するヘッダー。
	HeaderRequestID = "X-Request-ID"
	// HeaderUserID は認証済みユーザーのIDを伝播するヘッダー。
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles は認証済みユーザーのロールをJSON配列で伝播するヘッダー。
	HeaderUserRoles = "X-User-Roles"
)

// Ginコンテキストのキー。
const (
	contextKeyRequestID = "request_id"
	contextKeyUserID    = "user_id"
	contextKeyUserRoles = "user_roles"
)

// SetRequestID はGinコンテキストに相関IDを設定する。
func SetRequestID(c *gin.Context, id string) {
	c.Set(contextKeyRequestID, id)
}

// GetRequestID はGinコンテキストから相関IDを取得する。
// 設定されていない場合は空文字列を返す。
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// TrustedIdentity はgatewayが注入した信頼済みヘッダーを読み取り、
// Ginコンテキストに設定するミドルウェアを返す。バックエンドサービスで使用する。
// バックエンドはgateway経由でしか到達できないことを前提とし、署名の検証は行わない。
func TrustedIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(HeaderRequestID); id != "" {
			SetRequestID(c, id)
		}
		c.Set(contextKeyUserID, c.GetHeader(HeaderUserID))
		c.Set(contextKeyUserRoles, decodeRoles(c.GetHeader(HeaderUserRoles)))
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// TrustedIdentityミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUserRoles はGinコンテキストからユーザーのロールを取得する。
func GetUserRoles(c *gin.Context) []string {
	roles, _ := c.Get(contextKeyUserRoles)
	if r, ok := roles.([]string); ok {
		return r
	}
	return []string{}
}

// EncodeRoles はロールをX-User-RolesヘッダーのJSON配列形式に変換する。
// nilの場合は "[]" を返す。
func EncodeRoles(roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeRoles はX-User-RolesヘッダーのJSON配列を解釈する。
// 不正な値は空のロールとして扱う。
func decodeRoles(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil || roles == nil {
		return []string{}
	}
	return roles
}
