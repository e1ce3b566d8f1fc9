// Package orders は注文サービスの内部実装を提供する。
//
// 注文の作成・参照・一覧・キャンセル・ステータス更新を担当する。
// 全てのAPIはgatewayが注入したX-User-IDヘッダーで呼び出し元を識別し、
// 注文の所有者以外からのアクセスを拒否する。
//
// 注文の状態変化はドメインイベントとしてorder_eventsテーブルに
// 注文の更新と同じトランザクションで追記し、ログにも出力する。
package orders
