// Package cli はdocgateゲートウェイを操作するコマンドラインツール docctl を実装する。
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nao1215/docgate/pkg/httpclient"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version はビルド時に設定される。
var Version = "0.1.0"

// options はサブコマンドで共有するグローバルフラグ。
type options struct {
	server string
	token  string
	output string
}

// client はフラグからクライアントを生成する。
func (o *options) client() *httpclient.Client {
	return httpclient.New(o.server).WithToken(o.token)
}

// NewRootCommand はdocctlのルートコマンドを生成する。
// 呼び出しごとに新しいコマンドツリーを返すため、テストから並行に使える。
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "docctl",
		Short: "docgateゲートウェイのコマンドラインクライアント",
		Long: `docctlはdocgateゲートウェイのHTTP APIを呼び出すクライアントです。

ユーザー登録とログイン、PDFの結合・分割・回転などの文書操作、
管理者向けのユーザー一覧とイベント参照を行います。

接続先とトークンは --server / --token、または環境変数
DOCGATE_URL / DOCGATE_TOKEN で指定します。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case "table", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("--outputはtable, json, yamlのいずれかです: %q", opts.output)
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("DOCGATE_URL", "http://localhost:8080"), "ゲートウェイのURL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("DOCGATE_TOKEN"), "認証トークン")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "出力形式: table, json, yaml")

	root.AddCommand(
		newRegisterCommand(opts),
		newLoginCommand(opts),
		newAddUserCommand(opts),
		newUsersCommand(opts),
		newEventsCommand(opts),
		newRunCommand(opts),
	)
	return root
}

// formatOutput は--outputに応じてdataをJSONまたはYAMLで書き出す。
// tableの場合は何もせずfalseを返すので、呼び出し側で表を出力する。
func formatOutput(w io.Writer, format string, data any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, fmt.Errorf("YAMLへの変換に失敗: %w", err)
		}
		_, err = w.Write(out)
		return true, err
	default:
		return false, nil
	}
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
