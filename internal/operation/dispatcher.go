// Package operation は文書操作リクエストの検証・ステージング・実行を担う。
//
// 1件のリクエストは Received → Staged → Executing → Completed|Failed と遷移し、
// 各遷移はpkg/eventのイベントとして記録される。リクエストが作る一時ファイルは
// すべて1つのscratch.Scopeに属し、Executeが戻る前にどの経路でも削除される。
package operation

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/scratch"
	"github.com/nao1215/docgate/internal/toolexec"
	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/middleware"
)

// Input はアップロードされた1ファイル。
type Input struct {
	// Name はクライアントが付けたファイル名。
	Name string
	Data []byte
}

// Request は1回分の操作リクエスト。HTTP呼び出しごとに生成し、永続化しない。
type Request struct {
	ID     string
	Kind   Kind
	Inputs []Input
	Params map[string]string
	Caller middleware.Principal
}

// Result は成功した操作の結果。
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Runner は外部ツールの実行に求める操作。
type Runner interface {
	Invoke(ctx context.Context, inv toolexec.Invocation) (*toolexec.Outcome, error)
}

// Dispatcher は操作種別の対応表に従ってリクエストを実行する。
type Dispatcher struct {
	scratch  *scratch.Manager
	runner   Runner
	tools    Tools
	recorder event.Recorder
}

// NewDispatcher は新しいDispatcherを生成する。recorderはnilでもよい。
func NewDispatcher(m *scratch.Manager, runner Runner, tools Tools, recorder event.Recorder) *Dispatcher {
	return &Dispatcher{scratch: m, runner: runner, tools: tools, recorder: recorder}
}

// Execute はリクエストを実行して結果を返す。失敗はすべて *apperr.Error で返す。
// 戻る時点でリクエストの一時ファイルはすべて削除済みである。
// req.IDが空の場合は採番して設定する。
func (d *Dispatcher) Execute(ctx context.Context, req *Request) (res *Result, err error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	data := event.OperationData{Identity: req.Caller.Identity, Kind: string(req.Kind), Inputs: len(req.Inputs)}
	stream := event.NewStream(d.recorder, req.ID, event.AggregateTypeOperation)
	stream.Emit(event.TypeOperationReceived, data)

	scope := d.scratch.NewScope(req.ID)
	defer scope.Release()

	defer func() {
		if r := recover(); r != nil {
			stream.Emit(event.TypeOperationFailed, event.OperationFailedData{
				OperationData: data,
				ErrorKind:     string(apperr.KindInternal),
				Reason:        "panic",
			})
			panic(r)
		}
		if err != nil {
			kind := apperr.KindOf(err)
			log.Printf("[Operation] 失敗: request=%s kind=%s error_kind=%s error=%v", req.ID, req.Kind, kind, err)
			stream.Emit(event.TypeOperationFailed, event.OperationFailedData{
				OperationData: data,
				ErrorKind:     string(kind),
				Reason:        apperr.MessageOf(err),
			})
		}
	}()

	e, ok := kinds[req.Kind]
	if !ok {
		return nil, apperr.New(apperr.KindUnsupported, "未対応の操作です: %s", req.Kind)
	}

	// Received → Staged
	if err := e.check(req); err != nil {
		return nil, err
	}
	staged := make([]*scratch.Artifact, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		a, err := scope.Stage(in.Name, in.Data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "入力の保存に失敗しました")
		}
		staged = append(staged, a)
	}
	stream.Emit(event.TypeOperationStaged, data)

	// Staged → Executing
	data.Strategy = string(e.strategy)
	stream.Emit(event.TypeOperationExecuting, data)

	var out []byte
	switch e.strategy {
	case StrategyInProcess:
		out, err = d.runInProcess(e, staged, req.Params)
	case StrategyExternal:
		out, err = d.runExternal(ctx, scope, e, staged, req.Params)
	default:
		err = apperr.New(apperr.KindUnsupported, "未対応の操作です: %s", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	// Executing → Completed
	stream.Emit(event.TypeOperationCompleted, event.OperationCompletedData{
		OperationData: data,
		Size:          len(out),
		ElapsedMillis: time.Since(start).Milliseconds(),
	})
	return &Result{
		Data:        out,
		ContentType: "application/pdf",
		Filename:    string(req.Kind) + ".pdf",
	}, nil
}

// check は入力数・ファイル名・パラメータを検証する。
func (e entry) check(req *Request) error {
	n := len(req.Inputs)
	switch {
	case n < e.minInputs && e.minInputs > 1:
		return apperr.Validation("ファイルを%d個以上指定してください", e.minInputs)
	case n < e.minInputs:
		return apperr.Validation("ファイルを指定してください")
	case e.maxInputs > 0 && n > e.maxInputs:
		return apperr.Validation("ファイルは%d個まで指定できます", e.maxInputs)
	}
	for i, in := range req.Inputs {
		if len(in.Data) == 0 {
			return apperr.Validation("%d番目のファイルが空です", i+1)
		}
		if e.acceptInput != nil {
			if err := e.acceptInput(in.Name); err != nil {
				return err
			}
		}
	}
	if e.validate != nil {
		return e.validate(req.Params)
	}
	return nil
}

// runInProcess はステージ済みファイルを読み戻してプロセス内で変換する。
func (d *Dispatcher) runInProcess(e entry, staged []*scratch.Artifact, params map[string]string) ([]byte, error) {
	inputs := make([][]byte, 0, len(staged))
	for _, a := range staged {
		b, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "入力の読み込みに失敗しました")
		}
		inputs = append(inputs, b)
	}
	out, err := e.run(inputs, params)
	if err != nil {
		return nil, classifyDocumentError(err)
	}
	return out, nil
}

// runExternal は出力先を確保して外部ツールを起動し、結果を読み込む。
// 結果はスコープの解放前にメモリへ読み込む。
func (d *Dispatcher) runExternal(ctx context.Context, scope *scratch.Scope, e entry, staged []*scratch.Artifact, params map[string]string) ([]byte, error) {
	tpl := e.template(d.tools)

	var (
		output *scratch.Artifact
		err    error
	)
	if tpl.Name == string(KindConvert) {
		output, err = scope.Sibling(staged[0], ".pdf")
	} else {
		output, err = scope.Allocate(tpl.Name + ".pdf")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "出力先の確保に失敗しました")
	}

	inputs := make([]string, 0, len(staged))
	for _, a := range staged {
		inputs = append(inputs, a.Path)
	}
	secrets := make([]string, 0, len(e.secretParams))
	for _, name := range e.secretParams {
		secrets = append(secrets, params[name])
	}

	inv := toolexec.Invocation{
		Template: tpl,
		Inputs:   inputs,
		Output:   output.Path,
		Params:   params,
		Secrets:  secrets,
	}
	if _, err := d.runner.Invoke(ctx, inv); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(output.Path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalTool, err, "%sの出力を読み込めません", tpl.Name)
	}
	if len(out) == 0 {
		return nil, apperr.New(apperr.KindExternalTool, "%sの出力が空です", tpl.Name)
	}
	return out, nil
}

// String はログ向けの表現を返す。パラメータの値は含まない。
func (r *Request) String() string {
	return fmt.Sprintf("request=%s kind=%s inputs=%d caller=%s", r.ID, r.Kind, len(r.Inputs), r.Caller.Identity)
}
