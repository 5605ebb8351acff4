package operation

import (
	"slices"

	"github.com/nao1215/docgate/internal/toolexec"
)

// Kind は操作の種別。
type Kind string

const (
	KindMerge      Kind = "merge"
	KindSplit      Kind = "split"
	KindCompress   Kind = "compress"
	KindRotate     Kind = "rotate"
	KindImageToDoc Kind = "imageToDoc"
	KindWatermark  Kind = "watermark"
	KindPaginate   Kind = "paginate"
	KindProtect    Kind = "protect"
	KindUnprotect  Kind = "unprotect"
	KindConvert    Kind = "convert"
)

// Strategy は操作の実行方式。
type Strategy string

const (
	// StrategyInProcess はプロセス内の文書モデルで実行する。
	StrategyInProcess Strategy = "in-process"
	// StrategyExternal は外部ツールに委譲する。
	StrategyExternal Strategy = "external"
)

// Tools は外部ツールの実行ファイル。
type Tools struct {
	Ghostscript string
	QPDF        string
	Soffice     string
}

// entry は対応表の1行。
type entry struct {
	strategy Strategy
	// minInputs, maxInputs は入力ファイル数の範囲。maxInputsが0なら上限なし。
	minInputs int
	maxInputs int
	// validate はパラメータを検証する。
	validate func(params map[string]string) error
	// run はプロセス内の変換。入力はステージ済みファイルの内容。
	run func(inputs [][]byte, params map[string]string) ([]byte, error)
	// template は外部ツールのテンプレートを返す。
	template func(Tools) toolexec.Template
	// secretParams はログやメッセージから伏せるパラメータ名。
	secretParams []string
	// acceptInput は入力ファイル名を検証する。nilなら何でも受け付ける。
	acceptInput func(name string) error
}

// kinds は操作種別と実行方法の固定の対応表。
var kinds = map[Kind]entry{
	KindMerge: {
		strategy:  StrategyInProcess,
		minInputs: 2,
		run:       runMerge,
	},
	KindSplit: {
		strategy:  StrategyInProcess,
		minInputs: 1,
		maxInputs: 1,
		validate:  validateSplit,
		run:       runSplit,
	},
	KindRotate: {
		strategy:  StrategyInProcess,
		minInputs: 1,
		maxInputs: 1,
		validate:  validateRotate,
		run:       runRotate,
	},
	KindImageToDoc: {
		strategy:  StrategyInProcess,
		minInputs: 1,
		run:       runImageToDoc,
	},
	KindWatermark: {
		strategy:  StrategyInProcess,
		minInputs: 1,
		maxInputs: 1,
		validate:  validateWatermark,
		run:       runWatermark,
	},
	KindPaginate: {
		strategy:  StrategyInProcess,
		minInputs: 1,
		maxInputs: 1,
		run:       runPaginate,
	},
	KindCompress: {
		strategy:  StrategyExternal,
		minInputs: 1,
		maxInputs: 1,
		validate:  validateCompress,
		template:  func(t Tools) toolexec.Template { return toolexec.Compress(t.Ghostscript) },
	},
	KindProtect: {
		strategy:     StrategyExternal,
		minInputs:    1,
		maxInputs:    1,
		validate:     validatePassword,
		template:     func(t Tools) toolexec.Template { return toolexec.Protect(t.QPDF) },
		secretParams: []string{"password"},
	},
	KindUnprotect: {
		strategy:     StrategyExternal,
		minInputs:    1,
		maxInputs:    1,
		validate:     validatePassword,
		template:     func(t Tools) toolexec.Template { return toolexec.Unprotect(t.QPDF) },
		secretParams: []string{"password"},
	},
	KindConvert: {
		strategy:    StrategyExternal,
		minInputs:   1,
		maxInputs:   1,
		template:    func(t Tools) toolexec.Template { return toolexec.Convert(t.Soffice) },
		acceptInput: acceptOfficeDocument,
	},
}

// Kinds は対応表にあるすべての種別を名前順に返す。
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// MultiInput は入力を複数受け付ける種別かどうかを返す。
func (k Kind) MultiInput() bool {
	e, ok := kinds[k]
	return ok && e.maxInputs != 1
}

// Strategy は種別の実行方式を返す。未知の種別では空文字列。
func (k Kind) Strategy() Strategy {
	return kinds[k].strategy
}
