package operation

import (
	"errors"
	"fmt"

	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/document"
)

// loadAll は入力をすべて文書として読み込む。
func loadAll(inputs [][]byte) ([]*document.Document, error) {
	docs := make([]*document.Document, 0, len(inputs))
	for i, in := range inputs {
		doc, err := document.Load(in)
		if err != nil {
			return nil, fmt.Errorf("%d番目のファイル: %w", i+1, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func runMerge(inputs [][]byte, _ map[string]string) ([]byte, error) {
	docs, err := loadAll(inputs)
	if err != nil {
		return nil, err
	}
	merged, err := document.Merge(docs...)
	if err != nil {
		return nil, err
	}
	return merged.Bytes()
}

func runSplit(inputs [][]byte, params map[string]string) ([]byte, error) {
	pages, err := ParsePages(params["pages"])
	if err != nil {
		return nil, err
	}
	doc, err := document.Load(inputs[0])
	if err != nil {
		return nil, err
	}
	out, err := doc.CopyPages(pages)
	if errors.Is(err, document.ErrNoPages) {
		// 範囲外の番号は読み飛ばすだけなので、残りが無ければ0ページの文書を返す。
		return document.EmptyPDF(), nil
	}
	if err != nil {
		return nil, err
	}
	return out.Bytes()
}

func runRotate(inputs [][]byte, params map[string]string) ([]byte, error) {
	deg, err := parseRotation(params["rotation"])
	if err != nil {
		return nil, err
	}
	doc, err := document.Load(inputs[0])
	if err != nil {
		return nil, err
	}
	if err := doc.SetRotation(deg); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

func runImageToDoc(inputs [][]byte, _ map[string]string) ([]byte, error) {
	doc, err := document.FromImages(inputs...)
	if err != nil {
		return nil, err
	}
	return doc.Bytes()
}

func runWatermark(inputs [][]byte, params map[string]string) ([]byte, error) {
	text, opts, err := parseWatermark(params)
	if err != nil {
		return nil, err
	}
	doc, err := document.Load(inputs[0])
	if err != nil {
		return nil, err
	}
	if err := doc.DrawText(text, opts); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

func runPaginate(inputs [][]byte, _ map[string]string) ([]byte, error) {
	doc, err := document.Load(inputs[0])
	if err != nil {
		return nil, err
	}
	if err := doc.Paginate(); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

// classifyDocumentError は文書モデルのエラーを分類付きのエラーに変換する。
// 分類済みのエラーはそのまま返す。
func classifyDocumentError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, document.ErrInvalidDocument):
		return apperr.Wrap(apperr.KindValidation, err, "PDFとして読み込めないファイルがあります")
	case errors.Is(err, document.ErrInvalidImage):
		return apperr.Wrap(apperr.KindValidation, err, "画像として読み込めないファイルがあります")
	case errors.Is(err, document.ErrNoPages):
		return apperr.Wrap(apperr.KindValidation, err, "選択されたページがありません")
	case errors.Is(err, document.ErrInvalidRotation),
		errors.Is(err, document.ErrPageOutOfRange),
		errors.Is(err, document.ErrInvalidTextOptions):
		return apperr.Wrap(apperr.KindValidation, err, "%s", err.Error())
	}
	return apperr.Wrap(apperr.KindInternal, err, "文書の処理に失敗しました")
}
