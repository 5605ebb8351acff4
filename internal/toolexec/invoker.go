// Package toolexec は外部ツール（Ghostscript, qpdf, LibreOffice）を引数ベクタで起動する。
//
// シェルは一切介さない。入力・出力パスとパラメータはテンプレートが引数列に組み立て、
// Invokerが実行時間の上限付きで起動する。パスワード等の秘密値は
// ログに出す引数列では伏せ字にし、ツールの標準出力・標準エラーからも取り除く。
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/docgate/internal/apperr"
)

// mask は秘密値の置き換え文字列。
const mask = "***"

// maxDiagnostic はエラーメッセージに含める標準エラーの最大バイト数。
const maxDiagnostic = 512

// Invocation は外部ツール1回分の実行内容。
type Invocation struct {
	// Template は起動するツールと引数の組み立て方。
	Template Template
	// Inputs はステージ済みの入力ファイルのパス。
	Inputs []string
	// Output はツールが書き込む出力ファイルのパス。
	Output string
	// Params は操作パラメータ。
	Params map[string]string
	// Secrets はログや診断メッセージから取り除く値。
	Secrets []string
}

// Outcome は外部ツールの実行結果。Stdout/Stderrは秘密値を取り除いた後の内容。
type Outcome struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// CommandFunc は実行するコマンドを生成する関数。exec.CommandContextと同じ形。
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Invoker は外部ツールを起動する。複数のリクエストから並行に利用してよい。
type Invoker struct {
	timeout time.Duration
	command CommandFunc
}

// NewInvoker はInvokerを生成する。timeoutは1回の実行の上限。
func NewInvoker(timeout time.Duration) *Invoker {
	return &Invoker{timeout: timeout, command: exec.CommandContext}
}

// WithCommand はコマンド生成関数を差し替えたInvokerを返す。テストで使う。
func (iv *Invoker) WithCommand(fn CommandFunc) *Invoker {
	return &Invoker{timeout: iv.timeout, command: fn}
}

// Invoke は外部ツールを実行し、出力ファイルが生成されたことを確認する。
// 失敗はすべて *apperr.Error で返す。呼び出し元のcontextがキャンセルされるとツールは強制終了される。
func (iv *Invoker) Invoke(ctx context.Context, inv Invocation) (*Outcome, error) {
	tpl := inv.Template
	args, err := tpl.Args(inv.Inputs, inv.Output, inv.Params)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "%s", redact(err.Error(), inv.Secrets))
	}

	runCtx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := iv.command(runCtx, tpl.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 孫プロセスがパイプを握ったままでもWaitが戻るようにする。
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	log.Printf("[Tool] 起動: %s %s", tpl.Binary, strings.Join(maskArgs(args, inv.Secrets), " "))
	runErr := cmd.Run()

	outcome := &Outcome{
		ExitStatus: -1,
		Stdout:     redact(stdout.String(), inv.Secrets),
		Stderr:     redact(stderr.String(), inv.Secrets),
	}
	if cmd.ProcessState != nil {
		outcome.ExitStatus = cmd.ProcessState.ExitCode()
	}
	log.Printf("[Tool] 終了: %s status=%d elapsed=%s", tpl.Name, outcome.ExitStatus, time.Since(start).Round(time.Millisecond))

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return outcome, apperr.Wrap(apperr.KindExternalTool, runCtx.Err(), "%sがタイムアウトしました (%s)", tpl.Name, iv.timeout)
	case ctx.Err() != nil:
		return outcome, apperr.Wrap(apperr.KindExternalTool, ctx.Err(), "%sの実行が中断されました", tpl.Name)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return outcome, apperr.Wrap(apperr.KindExternalTool, runErr, "%sを起動できません", tpl.Name)
		}
		if !tpl.accepts(outcome.ExitStatus) {
			return outcome, tpl.failure(outcome)
		}
	}

	info, err := os.Stat(inv.Output)
	if err != nil || info.Size() == 0 {
		return outcome, apperr.New(apperr.KindExternalTool, "%sが出力を生成しませんでした", tpl.Name)
	}
	return outcome, nil
}

// failure は異常終了を分類付きのエラーに変換する。
func (t Template) failure(o *Outcome) error {
	kind := apperr.KindExternalTool
	if t.Classify != nil {
		if k := t.Classify(o.ExitStatus, o.Stderr); k != "" {
			kind = k
		}
	}
	diag := strings.TrimSpace(o.Stderr)
	if len(diag) > maxDiagnostic {
		diag = diag[:maxDiagnostic] + "..."
	}
	if kind == apperr.KindWrongPassword {
		return apperr.New(kind, "パスワードが正しくありません")
	}
	if diag == "" {
		return apperr.New(kind, "%sが終了コード%dで失敗しました", t.Name, o.ExitStatus)
	}
	return apperr.New(kind, "%sが終了コード%dで失敗しました: %s", t.Name, o.ExitStatus, diag)
}

// accepts は終了コードを成功とみなすかどうかを返す。
func (t Template) accepts(status int) bool {
	return status == 0 || slices.Contains(t.SuccessCodes, status)
}

// maskArgs は秘密値を含む引数を伏せ字にした複製を返す。
func maskArgs(args, secrets []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = redact(a, secrets)
	}
	return out
}

// redact は文字列中の秘密値をすべて伏せ字に置き換える。
func redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}
