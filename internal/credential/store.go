// Package credential はユーザーの資格情報（識別子・パスワードハッシュ・ロール）を保持する。
//
// ストアはプロセス全体で共有される唯一の可変状態であり、起動時は空で、
// 登録とプロビジョニングの経路からのみ変更される。削除の操作は持たない。
package credential

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/docgate/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Role はユーザーのロール。
type Role string

const (
	// RoleAdmin は管理者ロール。ユーザー管理APIを利用できる。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// ParseRole は文字列をRoleに変換する。空文字列はRoleUserとして扱う。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("不明なロールです: %q", s)
	}
}

var (
	// ErrNotFound は識別子に一致するユーザーが存在しないことを表す。
	ErrNotFound = errors.New("ユーザーが見つかりません")
	// ErrExists は同じ識別子のユーザーが既に存在することを表す。
	ErrExists = errors.New("ユーザーは既に存在します")
)

// User はストアに保存されるユーザーレコード。
type User struct {
	// Identity はユーザーの一意な識別子。大文字小文字を区別する。
	Identity string
	// SecretHash はbcryptでハッシュ化したパスワード。
	SecretHash string
	// Role はユーザーのロール。
	Role Role
}

// Store はSQLiteをバックエンドとする資格情報ストア。
type Store struct {
	db *sql.DB
}

// Open はDSNでSQLiteを開き、スキーマを適用したストアを返す。
// ":memory:" を指定した場合はプロセス終了とともに内容が失われる。
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteへの書き込みは直列化する。:memory: は接続ごとに別DBになるためでもある。
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

// Create はユーザーを追加する。識別子が重複する場合はErrExistsを返す。
func (s *Store) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (identity, secret_hash, role) VALUES (?, ?, ?)",
		u.Identity, u.SecretHash, string(u.Role),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("ユーザーの追加に失敗: %w", err)
	}
	return nil
}

// Get は識別子でユーザーを取得する。
func (s *Store) Get(ctx context.Context, identity string) (User, error) {
	var (
		u    User
		role string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT identity, secret_hash, role FROM users WHERE identity = ?", identity,
	).Scan(&u.Identity, &u.SecretHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	u.Role = Role(role)
	return u, nil
}

// List は登録順に全ユーザーを返す。
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT identity, secret_hash, role FROM users ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []User{}
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.Identity, &u.SecretHash, &role); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
		}
		u.Role = Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// isUniqueViolation は主キー・一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
