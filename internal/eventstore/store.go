package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// recordTimeout は1件の追記にかける時間の上限。
const recordTimeout = 5 * time.Second

// timeLayout は作成日時の保存形式。文字列比較で時刻順になるよう桁を固定する。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit は検索結果の件数上限のデフォルト値。
const DefaultLimit = 100

// Store はSQLiteをバックエンドとするイベントストア。
type Store struct {
	db *sql.DB
}

// Open はDSNでSQLiteを開き、スキーマを適用したストアを返す。
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Append はイベントを追記する。同じ対象とVersionの組が既にあればエラーを返す。
func (s *Store) Append(ctx context.Context, e *event.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AggregateID, string(e.AggregateType), string(e.EventType),
		string(e.Data), e.Version, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("イベントの追記に失敗: %w", err)
	}
	return nil
}

// Record はevent.Recorderの実装。追記に失敗してもログに残すだけで呼び出し元には伝えない。
func (s *Store) Record(e *event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.Append(ctx, e); err != nil {
		log.Printf("[EventStore] id=%s aggregate=%s type=%s: %v", e.ID, e.AggregateID, e.EventType, err)
	}
}

// ByAggregate は対象IDのイベントをVersion順に返す。
func (s *Store) ByAggregate(ctx context.Context, aggregateID string) ([]*event.Event, error) {
	return s.query(ctx,
		"WHERE aggregate_id = ? ORDER BY version", aggregateID)
}

// Query はイベント検索の条件。ゼロ値の項目は条件に含めない。
type Query struct {
	// Type はイベントタイプ。
	Type event.Type
	// Since はこの日時以降に作成されたイベントに絞る。
	Since time.Time
	// Limit は返す件数の上限。0以下ならDefaultLimit。
	Limit int
}

// Find は条件に一致するイベントを作成順に返す。
func (s *Store) Find(ctx context.Context, q Query) ([]*event.Event, error) {
	where := "WHERE 1 = 1"
	var args []any
	if q.Type != "" {
		where += " AND event_type = ?"
		args = append(args, string(q.Type))
	}
	if !q.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)
	return s.query(ctx, where+" ORDER BY created_at, rowid LIMIT ?", args...)
}

func (s *Store) query(ctx context.Context, clause string, args ...any) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at FROM events "+clause,
		args...)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []*event.Event{}
	for rows.Next() {
		var e event.Event
		var aggType, evType, data, created string
		if err := rows.Scan(&e.ID, &e.AggregateID, &aggType, &evType, &data, &e.Version, &created); err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗: %w", err)
		}
		e.AggregateType = event.AggregateType(aggType)
		e.EventType = event.Type(evType)
		e.Data = []byte(data)
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
