// Package apiresponse はゲートウェイと各バックエンドサービスで共通のJSONレスポンス形式を提供する。
//
// 成功時は {"success": true, "data": ...}、失敗時は
// {"success": false, "error": {"code": ..., "message": ...}} を返す。
// エラーコードは機械判定用の安定した文字列であり、呼び出し元はこれで分岐する。
package apiresponse
