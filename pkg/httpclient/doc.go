// Package httpclient はgatewayからバックエンドサービスへのHTTP通信を行うクライアントを提供する。
//
// 接続先ごとに1つのClientを生成し、リクエストを中継する。
// レスポンスは加工せずにそのまま返し、リダイレクトも追従せずに呼び出し元へ返す。
// タイムアウトとキャンセルは呼び出し元のcontext.Contextで制御する。
package httpclient
