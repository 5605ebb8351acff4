// docgateゲートウェイのエントリポイント。
// 認証とユーザー管理、PDF文書操作のHTTP APIを提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/docgate/internal/config"
	"github.com/nao1215/docgate/internal/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}
	defer server.Shutdown()

	log.Printf("Gatewayサービスを起動します: :%s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		log.Printf("Gatewayサービスが異常終了しました: %v", err)
		return
	}
	log.Printf("Gatewayサービスを停止しました")
}
