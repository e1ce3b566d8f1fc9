// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// リクエストごとに次の順でミドルウェアを通す。
//
//	相関ID付与 → レート制限 → 認証ゲート → 転送 → (一致するルートが無ければ)フォールバック
//
// 認証ゲートで検証したトークンのID情報は、転送時に信頼済みヘッダー
// (X-Request-ID / X-User-ID / X-User-Roles) としてバックエンドに渡す。
// クライアントが同名のヘッダーを送ってきても必ず上書きする。
package gateway
