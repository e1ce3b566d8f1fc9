// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、アクセスログ、CORS設定に加えて、gatewayが注入する
// 信頼済みヘッダー（X-Request-ID / X-User-ID / X-User-Roles）をバックエンド側で
// 読み取るためのミドルウェアを含む。
package middleware
