// Package config は環境変数からゲートウェイの実行時設定を読み込む。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はゲートウェイの実行時設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
	// ScratchDir は一時ファイルを置くディレクトリ。
	ScratchDir string
	// MaxUploadSize はマルチパートリクエスト全体の上限（バイト）。
	MaxUploadSize int64
	// ToolTimeout は外部ツール1回あたりの実行時間の上限。
	ToolTimeout time.Duration
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// CredentialDSN は資格情報ストアのSQLite DSN。
	CredentialDSN string
	// EventDSN はイベントストアのSQLite DSN。CredentialDSNとは別のデータベースを指定する。
	EventDSN string
	// GhostscriptBin は圧縮に使うGhostscriptの実行ファイル。
	GhostscriptBin string
	// QPDFBin は保護・保護解除に使うqpdfの実行ファイル。
	QPDFBin string
	// SofficeBin は文書変換に使うLibreOfficeの実行ファイル。
	SofficeBin string
	// AdminIdentity は起動時に登録する管理者の識別子。空なら登録しない。
	AdminIdentity string
	// AdminSecret は起動時に登録する管理者のパスワード。
	AdminSecret string
}

// Load は環境変数から設定を読み込む。未設定の項目はデフォルト値を使う。
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOr("PORT", "8080"),
		JWTSecret:      getEnvOr("JWT_SECRET", "dev-secret-key"),
		ScratchDir:     getEnvOr("SCRATCH_DIR", filepath.Join(os.TempDir(), "docgate")),
		FrontendURL:    getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		CredentialDSN:  getEnvOr("CREDENTIAL_DSN", ":memory:"),
		EventDSN:       getEnvOr("EVENT_DSN", ":memory:"),
		GhostscriptBin: getEnvOr("GS_BIN", "gs"),
		QPDFBin:        getEnvOr("QPDF_BIN", "qpdf"),
		SofficeBin:     getEnvOr("SOFFICE_BIN", "soffice"),
		AdminIdentity:  os.Getenv("ADMIN_IDENTITY"),
		AdminSecret:    os.Getenv("ADMIN_SECRET"),
	}

	var err error
	if cfg.TokenTTL, err = getDurationOr("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ToolTimeout, err = getDurationOr("TOOL_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	maxMB, err := getIntOr("MAX_UPLOAD_MB", 50)
	if err != nil {
		return nil, err
	}
	if maxMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MBは正の値である必要があります: %d", maxMB)
	}
	cfg.MaxUploadSize = int64(maxMB) << 20

	// マイグレーションの管理テーブルが衝突するため、同じファイルは共有できない。
	if cfg.EventDSN == cfg.CredentialDSN && cfg.EventDSN != ":memory:" {
		return nil, fmt.Errorf("EVENT_DSNとCREDENTIAL_DSNには別のデータベースを指定してください")
	}

	if (cfg.AdminIdentity == "") != (cfg.AdminSecret == "") {
		return nil, fmt.Errorf("ADMIN_IDENTITYとADMIN_SECRETは両方指定する必要があります")
	}

	return cfg, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getDurationOr は環境変数をtime.ParseDurationで解釈する。
func getDurationOr(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%sの形式が不正です: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%sは正の値である必要があります: %s", key, v)
	}
	return d, nil
}

// getIntOr は環境変数を整数として解釈する。
func getIntOr(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%sの形式が不正です: %w", key, err)
	}
	return n, nil
}
