// Package httpclient はdocgateゲートウェイのAPIを呼び出すクライアントを提供する。
//
// 登録・ログイン、文書操作のアップロード、管理者向けのユーザー一覧と
// イベント参照を扱う。2xx以外のレスポンスは StatusError として返す。
package httpclient
