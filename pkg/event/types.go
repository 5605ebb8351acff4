// Package event は操作とアカウントの監査イベントを表す。
//
// イベントは不変のレコードで、対象（Aggregate）ごとに1から始まる連番のVersionを持つ。
// 1件の操作リクエストは Received → Staged → Executing → Completed|Failed の順にイベントを残す。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeOperation は文書操作リクエストを表す。AggregateIDはリクエストID。
	AggregateTypeOperation AggregateType = "Operation"
	// AggregateTypeUser はユーザーを表す。AggregateIDは識別子。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOperationReceived は操作リクエストを受け付けたことを表す。
	TypeOperationReceived Type = "OperationReceived"
	// TypeOperationStaged は入力の検証とステージングが完了したことを表す。
	TypeOperationStaged Type = "OperationStaged"
	// TypeOperationExecuting は変換の実行を開始したことを表す。
	TypeOperationExecuting Type = "OperationExecuting"
	// TypeOperationCompleted は変換が成功したことを表す。
	TypeOperationCompleted Type = "OperationCompleted"
	// TypeOperationFailed は操作が失敗したことを表す。
	TypeOperationFailed Type = "OperationFailed"

	// TypeUserRegistered は自己登録でユーザーが作成されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeUserProvisioned は管理者によってユーザーが作成されたことを表す。
	TypeUserProvisioned Type = "UserProvisioned"
)

// Event は不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// OperationData は操作イベントに共通のデータ。
type OperationData struct {
	// Identity は操作を要求したユーザーの識別子。
	Identity string `json:"identity"`
	// Kind は操作の種別。
	Kind string `json:"kind"`
	// Inputs は入力ファイルの数。
	Inputs int `json:"inputs,omitempty"`
	// Strategy は実行方式（in-process / external）。Executing以降で設定する。
	Strategy string `json:"strategy,omitempty"`
}

// OperationCompletedData はOperationCompletedイベントのデータ。
type OperationCompletedData struct {
	OperationData
	// Size は結果のバイト数。
	Size int `json:"size"`
	// ElapsedMillis は受付から完了までの時間（ミリ秒）。
	ElapsedMillis int64 `json:"elapsed_ms"`
}

// OperationFailedData はOperationFailedイベントのデータ。
type OperationFailedData struct {
	OperationData
	// ErrorKind はエラーの分類。
	ErrorKind string `json:"error_kind"`
	// Reason は利用者向けのメッセージ。秘密値は含まない。
	Reason string `json:"reason"`
}

// UserData はユーザーイベントのデータ。シークレットやハッシュは含めない。
type UserData struct {
	// Role は付与されたロール。
	Role string `json:"role"`
	// Actor は操作を行ったユーザーの識別子。自己登録では空。
	Actor string `json:"actor,omitempty"`
}
