package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/internal/account"
	"github.com/nao1215/docgate/internal/config"
	"github.com/nao1215/docgate/internal/credential"
	"github.com/nao1215/docgate/internal/eventstore"
	"github.com/nao1215/docgate/internal/operation"
	"github.com/nao1215/docgate/internal/scratch"
	"github.com/nao1215/docgate/internal/token"
	"github.com/nao1215/docgate/internal/toolexec"
	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/middleware"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ上限。
const shutdownTimeout = 30 * time.Second

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// maxUploadSize はリクエスト本文の上限（バイト）。
	maxUploadSize int64
	// tokens はトークンの検証に使う。
	tokens middleware.Verifier
	// accounts は登録・ログインを扱う。
	accounts *account.Service
	// dispatcher は文書操作を実行する。
	dispatcher *operation.Dispatcher
	// events は操作とユーザーのイベントを参照する。
	events *eventstore.Store
	// store はShutdownで閉じる資格情報ストア。
	store *credential.Store
}

// NewServer は設定から依存関係を組み立ててサーバーを生成する。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := credential.Open(ctx, cfg.CredentialDSN)
	if err != nil {
		return nil, fmt.Errorf("資格情報ストアの初期化に失敗: %w", err)
	}

	events, err := eventstore.Open(ctx, cfg.EventDSN)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("イベントストアの初期化に失敗: %w", err)
	}
	closeAll := func() {
		store.Close()
		events.Close()
	}

	tokens := token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	accounts, err := account.NewService(store, tokens)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("アカウントサービスの初期化に失敗: %w", err)
	}
	recorder := event.Tee(event.LogRecorder{}, events)
	accounts.SetRecorder(recorder)

	if cfg.AdminIdentity != "" {
		if err := accounts.Bootstrap(ctx, cfg.AdminIdentity, cfg.AdminSecret); err != nil {
			closeAll()
			return nil, fmt.Errorf("管理者の登録に失敗: %w", err)
		}
		log.Printf("[Gateway] 管理者を登録しました: %s", cfg.AdminIdentity)
	}

	scratchDir, err := scratch.NewManager(cfg.ScratchDir)
	if err != nil {
		closeAll()
		return nil, err
	}
	tools := operation.Tools{
		Ghostscript: cfg.GhostscriptBin,
		QPDF:        cfg.QPDFBin,
		Soffice:     cfg.SofficeBin,
	}
	dispatcher := operation.NewDispatcher(scratchDir, toolexec.NewInvoker(cfg.ToolTimeout), tools, recorder)

	s := newServer(cfg, tokens, accounts, dispatcher, events)
	s.store = store
	return s, nil
}

// newServer はルーターを組み立てる。テストでは依存関係を差し替えて使う。
func newServer(cfg *config.Config, tokens middleware.Verifier, accounts *account.Service, dispatcher *operation.Dispatcher, events *eventstore.Store) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	// 上限を超えた部分は一時ファイルに退避される。退避先はハンドラで削除する。
	router.MaxMultipartMemory = 32 << 20

	s := &Server{
		router:        router,
		port:          cfg.Port,
		maxUploadSize: cfg.MaxUploadSize,
		tokens:        tokens,
		accounts:      accounts,
		dispatcher:    dispatcher,
		events:        events,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされると処理中のリクエストを待って停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[Gateway] 停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	return nil
}

// Shutdown はサーバーが保持する資源を解放する。
func (s *Server) Shutdown() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("[Gateway] 資格情報ストアのクローズに失敗: %v", err)
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			log.Printf("[Gateway] イベントストアのクローズに失敗: %v", err)
		}
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	ops := s.router.Group("/operation")
	{
		// 認証不要
		ops.POST("/register", s.handleRegister())
		ops.POST("/login", s.handleLogin())
	}

	admin := ops.Group("/admin")
	admin.Use(middleware.Authenticate(s.tokens), middleware.RequireRole(string(credential.RoleAdmin)))
	{
		admin.POST("/add-user", s.handleAddUser())
		admin.GET("/users", s.handleListUsers())
		admin.GET("/events", s.handleFindEvents())
		admin.GET("/events/:aggregate_id", s.handleAggregateEvents())
	}

	// 文書操作は種別ごとにルートを固定する。
	docs := ops.Group("")
	docs.Use(middleware.Authenticate(s.tokens), s.limitBody())
	for _, kind := range operation.Kinds() {
		docs.POST("/"+string(kind), s.handleOperation(kind))
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "docgate"})
	})
}
