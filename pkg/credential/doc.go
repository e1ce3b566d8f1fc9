// Package credential はベアラートークンの発行と検証を提供する。
//
// トークンはHS256で署名されたJWTで、サブジェクトID・ロール・発行日時・有効期限を持つ。
// 発行はusersサービスのログイン時に、検証はgatewayの認証ゲートでのみ行う。
// バックエンドはトークンを検証せず、gatewayが注入する信頼済みヘッダーだけを参照する。
package credential
