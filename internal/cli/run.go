package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/docgate/pkg/httpclient"
	"github.com/spf13/cobra"
)

// runResult は--output json/yamlで表示する実行結果。
type runResult struct {
	RequestID string `json:"request_id" yaml:"request_id"`
	File      string `json:"file" yaml:"file"`
	Size      int    `json:"size" yaml:"size"`
}

// parseParams はkey=value形式のパラメータを解析する。
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("パラメータはkey=value形式で指定してください: %q", p)
		}
		params[k] = v
	}
	return params, nil
}

func newRunCommand(opts *options) *cobra.Command {
	var (
		pairs []string
		save  string
	)
	cmd := &cobra.Command{
		Use:   "run <kind> <file>...",
		Short: "文書操作を実行して結果のPDFを保存する",
		Long: `文書操作を実行して結果のPDFを保存します。

kindにはmerge, split, compress, rotate, imageToDoc, watermark, paginate,
protect, unprotect, convertのいずれかを指定します。ファイルは指定した順に送信します。

例:
  docctl run merge a.pdf b.pdf --save merged.pdf
  docctl run split in.pdf -p pages=1,3
  docctl run watermark in.pdf -p text=社外秘 -p fontSize=48 -p color=#FF0000 -p opacity=0.3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			params, err := parseParams(pairs)
			if err != nil {
				return err
			}

			files := make([]httpclient.File, 0, len(args)-1)
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
				}
				files = append(files, httpclient.File{Name: filepath.Base(path), Data: data})
			}

			res, err := opts.client().Operate(cmd.Context(), kind, files, params)
			if err != nil {
				return err
			}

			dest := save
			if dest == "" {
				dest = kind + ".pdf"
			}
			if err := os.WriteFile(dest, res.Data, 0o644); err != nil {
				return fmt.Errorf("結果の保存に失敗: %w", err)
			}

			out := runResult{RequestID: res.RequestID, File: dest, Size: len(res.Data)}
			if done, err := formatOutput(cmd.OutOrStdout(), opts.output, out); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "保存しました: %s (%d bytes, request-id=%s)\n", dest, out.Size, out.RequestID)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "操作パラメータ（key=value、複数指定可）")
	cmd.Flags().StringVar(&save, "save", "", "結果の保存先（省略時は<kind>.pdf）")
	return cmd
}
