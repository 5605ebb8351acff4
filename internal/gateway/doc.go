// Package gateway はdocgateのHTTPインターフェースを提供する。
//
// 登録・ログイン・管理者向けのユーザー管理と、認証済みユーザーによる
// 文書操作（/operation/{kind}）を受け付ける。成功時はPDFの本文を、
// 失敗時はエラー分類に応じたステータスコードとプレーンテキストを返す。
package gateway
