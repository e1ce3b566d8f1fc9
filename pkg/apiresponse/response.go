package apiresponse

import (
	"github.com/gin-gonic/gin"
)

// Code は機械判定用のエラーコード。
type Code string

const (
	// CodeUnauthorized は認証情報が無い、または形式が不正であることを表す。
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeInvalidToken はトークンの署名・形式・有効期限の検証に失敗したことを表す。
	CodeInvalidToken Code = "INVALID_TOKEN"
	// CodeRateLimited はレート制限のウィンドウ上限を超えたことを表す。
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeNotFound は一致するルートが無いことを表す。
	CodeNotFound Code = "NOT_FOUND"
	// CodeUpstreamUnavailable はバックエンドに到達できない、またはタイムアウトしたことを表す。
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	// CodeInternal は想定外の内部エラーを表す。
	CodeInternal Code = "INTERNAL"

	// CodeValidationError はリクエストボディの検証エラーを表す。
	CodeValidationError Code = "VALIDATION_ERROR"
	// CodeEmailExists は登録済みのメールアドレスであることを表す。
	CodeEmailExists Code = "EMAIL_EXISTS"
	// CodeInvalidCredentials はメールアドレスまたはパスワードが誤っていることを表す。
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	// CodeUserNotFound はユーザーが存在しないことを表す。
	CodeUserNotFound Code = "USER_NOT_FOUND"
	// CodeOrderNotFound は注文が存在しないことを表す。
	CodeOrderNotFound Code = "ORDER_NOT_FOUND"
	// CodeForbidden はリソースへのアクセス権が無いことを表す。
	CodeForbidden Code = "FORBIDDEN"
	// CodeInvalidStatus は注文ステータスが許可された値でないことを表す。
	CodeInvalidStatus Code = "INVALID_STATUS"
)

// ErrorBody はエラーレスポンスのerrorフィールド。
type ErrorBody struct {
	// Code は機械判定用のエラーコード。
	Code Code `json:"code"`
	// Message は人間向けのエラーメッセージ。
	Message string `json:"message"`
}

// Envelope は全サービス共通のレスポンス形式。
type Envelope struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Data は成功時のペイロード。
	Data any `json:"data,omitempty"`
	// Error は失敗時のエラー情報。
	Error *ErrorBody `json:"error,omitempty"`
}

// NewError はエラーレスポンスのエンベロープを生成する。
func NewError(code Code, message string) Envelope {
	return Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	}
}

// Abort はエラーレスポンスを書き込み、以降のハンドラチェーンを中断する。
func Abort(c *gin.Context, status int, code Code, message string) {
	c.AbortWithStatusJSON(status, NewError(code, message))
}

// OK は成功レスポンスを書き込む。
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}
