// Package middleware はゲートウェイのGinルーターで使用する共通ミドルウェアを提供する。
//
// すべての操作ルートの前段に置くアクセスゲート（認証と認可の組）、
// パニックリカバリ、CORS設定を含む。
package middleware
