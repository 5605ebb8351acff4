// Package eventstore は操作とユーザーのライフサイクルイベントをSQLiteに追記する。
//
// イベントは不変であり、追記のみで運用される。Store は event.Recorder を
// 実装しているため、Dispatcher やアカウントサービスの記録先としてそのまま使える。
//
// 主な機能:
//   - イベントの追記（Record）
//   - 対象IDによるイベント取得（1リクエストの状態遷移の追跡用）
//   - イベントタイプと日時によるイベント取得（監査用）
package eventstore
