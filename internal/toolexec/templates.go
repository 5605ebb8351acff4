package toolexec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nao1215/docgate/internal/apperr"
)

// Template は外部ツールの起動方法を表す。
type Template struct {
	// Name はログとエラーメッセージに使う名前。
	Name string
	// Binary は実行ファイルの名前またはパス。
	Binary string
	// Args は入力・出力パスとパラメータから引数列を組み立てる。
	Args func(inputs []string, output string, params map[string]string) ([]string, error)
	// SuccessCodes は0以外で成功とみなす終了コード。
	SuccessCodes []int
	// Classify は異常終了を分類する。空文字列を返すとKindExternalToolになる。
	Classify func(status int, stderr string) apperr.Kind
}

var errSingleInput = errors.New("入力ファイルは1つだけ指定してください")

// gsQuality は品質パラメータとGhostscriptのPDFSETTINGSの対応。
var gsQuality = map[string]string{
	"low":    "/screen",
	"medium": "/ebook",
	"high":   "/printer",
}

// Compress はGhostscriptのpdfwriteデバイスで再圧縮するテンプレートを返す。
func Compress(bin string) Template {
	return Template{
		Name:   "compress",
		Binary: bin,
		Args: func(inputs []string, output string, params map[string]string) ([]string, error) {
			if len(inputs) != 1 {
				return nil, errSingleInput
			}
			setting, ok := gsQuality[params["quality"]]
			if !ok {
				return nil, fmt.Errorf("qualityはlow, medium, highのいずれかです: %q", params["quality"])
			}
			return []string{
				"-sDEVICE=pdfwrite",
				"-dCompatibilityLevel=1.4",
				"-dPDFSETTINGS=" + setting,
				"-dNOPAUSE",
				"-dQUIET",
				"-dBATCH",
				"-dSAFER",
				"-sOutputFile=" + output,
				inputs[0],
			}, nil
		},
	}
}

// Protect はqpdfでAES-256暗号化するテンプレートを返す。
// ユーザーパスワードとオーナーパスワードには同じ値を使う。
func Protect(bin string) Template {
	return Template{
		Name:   "protect",
		Binary: bin,
		Args: func(inputs []string, output string, params map[string]string) ([]string, error) {
			if len(inputs) != 1 {
				return nil, errSingleInput
			}
			pw := params["password"]
			if pw == "" {
				return nil, errors.New("passwordを指定してください")
			}
			return []string{
				"--encrypt",
				"--user-password=" + pw,
				"--owner-password=" + pw,
				"--bits=256",
				"--",
				inputs[0],
				output,
			}, nil
		},
		// qpdfは警告付きの成功を3で返す。
		SuccessCodes: []int{3},
	}
}

// Unprotect はqpdfで暗号化を解除するテンプレートを返す。
func Unprotect(bin string) Template {
	return Template{
		Name:   "unprotect",
		Binary: bin,
		Args: func(inputs []string, output string, params map[string]string) ([]string, error) {
			if len(inputs) != 1 {
				return nil, errSingleInput
			}
			pw := params["password"]
			if pw == "" {
				return nil, errors.New("passwordを指定してください")
			}
			return []string{
				"--decrypt",
				"--password=" + pw,
				inputs[0],
				output,
			}, nil
		},
		SuccessCodes: []int{3},
		Classify:     classifyQPDF,
	}
}

// classifyQPDF はqpdfのパスワード不一致をKindWrongPasswordに分類する。
func classifyQPDF(_ int, stderr string) apperr.Kind {
	if strings.Contains(strings.ToLower(stderr), "invalid password") {
		return apperr.KindWrongPassword
	}
	return ""
}

// Convert はLibreOfficeのヘッドレスモードでPDFに変換するテンプレートを返す。
// sofficeは出力ファイル名を入力ファイル名から決めるため、outputは入力と同じディレクトリ・
// 同じ幹で拡張子 .pdf のパスでなければならない。
func Convert(bin string) Template {
	return Template{
		Name:   "convert",
		Binary: bin,
		Args: func(inputs []string, output string, _ map[string]string) ([]string, error) {
			if len(inputs) != 1 {
				return nil, errSingleInput
			}
			in := inputs[0]
			want := strings.TrimSuffix(in, filepath.Ext(in)) + ".pdf"
			if output != want || output == in {
				return nil, fmt.Errorf("変換の出力先は入力と同じ幹の .pdf である必要があります")
			}
			return []string{
				"--headless",
				"--norestore",
				"--convert-to", "pdf",
				"--outdir", filepath.Dir(output),
				in,
			}, nil
		},
	}
}
