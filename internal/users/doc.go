// Package users はユーザーサービスの内部実装を提供する。
//
// ユーザー登録・ログイン・プロフィールの参照と更新を担当する。
// ログインに成功するとgatewayが検証できるトークンを発行する。
// プロフィールのAPIはgatewayが注入したX-User-IDヘッダーでユーザーを識別し、
// トークンの検証は行わない。
package users
