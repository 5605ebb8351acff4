// Package document はプロセス内で完結する構造的なPDF編集を提供する。
//
// pdfcpuのモデル（model.Context）をページ単位で扱い、ページの複製・並べ替え、
// 回転、画像からのページ生成、テキストの重ね描きを行う。
// シリアライズ結果にはタイムスタンプ等が含まれるため、出力のバイト列は同一入力でも一致しない。
// 比較はページ数・回転・画像の有無といった構造で行うこと。
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrInvalidDocument は入力をPDFとして読み込めないことを表す。
	ErrInvalidDocument = errors.New("PDFとして読み込めません")
	// ErrInvalidImage は入力を画像として読み込めないことを表す。
	ErrInvalidImage = errors.New("画像として読み込めません")
	// ErrNoPages は結果のページが1つも無いことを表す。
	ErrNoPages = errors.New("ページがありません")
	// ErrInvalidRotation は回転角が0/90/180/270以外であることを表す。
	ErrInvalidRotation = errors.New("回転角は0, 90, 180, 270のいずれかです")
	// ErrPageOutOfRange はページ番号が範囲外であることを表す。
	ErrPageOutOfRange = errors.New("ページ番号が範囲外です")
)

// disableConfigDir はpdfcpuがユーザーのホームに設定ディレクトリを作らないようにする。
var disableConfigDir sync.Once

// newConfiguration は処理ごとに使うpdfcpuの設定を返す。
func newConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document はメモリ上の編集可能なPDF文書。
// 1つのリクエストに専有される前提で、並行利用は想定しない。
type Document struct {
	ctx *model.Context
	// raw はctxに対応する直近のシリアライズ結果。
	raw []byte
	// dirty はraw以降にctxが変更されたかどうか。
	dirty bool
}

// Load はバイト列からDocumentを読み込む。
func Load(data []byte) (*Document, error) {
	conf := newConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &Document{ctx: ctx, raw: data}, nil
}

// PageCount はページ数を返す。
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Bytes は文書をシリアライズする。
// 変更があった場合は書き出した結果を読み直し、以降の編集はその結果に対して行う。
func (d *Document) Bytes() ([]byte, error) {
	if !d.dirty {
		return d.raw, nil
	}

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("PDFの書き出しに失敗: %w", err)
	}
	fresh, err := Load(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("書き出したPDFの再読み込みに失敗: %w", err)
	}
	*d = *fresh
	return d.raw, nil
}

// Merge は文書を順に連結した新しい文書を返す。ページ数は入力の合計になる。
func Merge(docs ...*Document) (*Document, error) {
	if len(docs) == 0 {
		return nil, ErrNoPages
	}
	if len(docs) == 1 {
		return docs[0], nil
	}

	rsc := make([]io.ReadSeeker, 0, len(docs))
	for i, doc := range docs {
		b, err := doc.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%d番目の文書の書き出しに失敗: %w", i+1, err)
		}
		rsc = append(rsc, bytes.NewReader(b))
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, newConfiguration()); err != nil {
		return nil, fmt.Errorf("PDFの結合に失敗: %w", err)
	}
	return Load(buf.Bytes())
}

// Append は別の文書のページを末尾に追加する。
func (d *Document) Append(other *Document) error {
	merged, err := Merge(d, other)
	if err != nil {
		return err
	}
	*d = *merged
	return nil
}

// CopyPages は1始まりのページ番号で選んだページを、指定順に並べた新しい文書を返す。
// 範囲外の番号は黙って読み飛ばす。重複した番号はそのページを複数回含める。
// 有効な番号が1つも無い場合はErrNoPagesを返す。0ページの結果が必要な場合はEmptyPDFを使う。
func (d *Document) CopyPages(indices []int) (*Document, error) {
	n := d.PageCount()
	selected := make([]string, 0, len(indices))
	for _, i := range indices {
		if i >= 1 && i <= n {
			selected = append(selected, strconv.Itoa(i))
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoPages
	}

	src, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.Collect(bytes.NewReader(src), &buf, selected, newConfiguration()); err != nil {
		return nil, fmt.Errorf("ページの抽出に失敗: %w", err)
	}
	return Load(buf.Bytes())
}

// EmptyPDF はページを1枚も持たないPDFのバイト列を返す。
// pdfcpuのモデルは0ページの文書を書き出せないため、カタログと空のページツリーだけを直接組み立てる。
func EmptyPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	// 相互参照表の各行は改行を含めて20バイト固定。
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// ValidRotation は回転角が許可された値かどうかを返す。
func ValidRotation(deg int) bool {
	switch deg {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// SetRotation はページの回転角を絶対値で設定する。現在の回転には加算しない。
// pagesを省略した場合はすべてのページが対象になる。
func (d *Document) SetRotation(deg int, pages ...int) error {
	if !ValidRotation(deg) {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, deg)
	}
	targets, err := d.targetPages(pages)
	if err != nil {
		return err
	}

	for _, p := range targets {
		pageDict, _, _, err := d.ctx.PageDict(p, false)
		if err != nil {
			return fmt.Errorf("ページ%dの取得に失敗: %w", p, err)
		}
		pageDict.Update("Rotate", types.Integer(deg))
	}
	d.dirty = true
	return nil
}

// PageInfo はページの構造的な属性。
type PageInfo struct {
	// Rotation は0/90/180/270に正規化した回転角。
	Rotation int
	// Images はページのリソースに含まれる画像XObjectの数。
	Images int
	// Forms はページのリソースに含まれるフォームXObjectの数（重ね描きしたテキスト等）。
	Forms int
}

// Page は1始まりのページ番号でページの属性を返す。
func (d *Document) Page(p int) (PageInfo, error) {
	if p < 1 || p > d.PageCount() {
		return PageInfo{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, p)
	}
	pageDict, _, inherited, err := d.ctx.PageDict(p, false)
	if err != nil {
		return PageInfo{}, fmt.Errorf("ページ%dの取得に失敗: %w", p, err)
	}

	info := PageInfo{}
	if inherited != nil {
		info.Rotation = ((inherited.Rotate % 360) + 360) % 360
	}

	resObj, found := pageDict.Find("Resources")
	if !found && inherited != nil && inherited.Resources != nil {
		resObj = inherited.Resources
	}
	resources, err := d.ctx.DereferenceDict(resObj)
	if err != nil || resources == nil {
		return info, nil
	}
	xobjects, err := d.ctx.DereferenceDict(resources["XObject"])
	if err != nil || xobjects == nil {
		return info, nil
	}
	for _, ref := range xobjects {
		switch d.xobjectSubtype(ref) {
		case "Image":
			info.Images++
		case "Form":
			info.Forms++
		}
	}
	return info, nil
}

// Rotation はページの回転角を返す。
func (d *Document) Rotation(p int) (int, error) {
	info, err := d.Page(p)
	return info.Rotation, err
}

// HasImage はページに画像が埋め込まれているかどうかを返す。
func (d *Document) HasImage(p int) (bool, error) {
	info, err := d.Page(p)
	return info.Images > 0, err
}

// xobjectSubtype はXObjectの/Subtypeを返す。取得できない場合は空文字列。
func (d *Document) xobjectSubtype(o types.Object) string {
	obj, err := d.ctx.Dereference(o)
	if err != nil {
		return ""
	}
	var dict types.Dict
	switch sd := obj.(type) {
	case types.StreamDict:
		dict = sd.Dict
	case *types.StreamDict:
		dict = sd.Dict
	default:
		return ""
	}
	if st := dict.NameEntry("Subtype"); st != nil {
		return *st
	}
	return ""
}

// targetPages は対象ページ番号を検証して返す。空なら全ページ。
func (d *Document) targetPages(pages []int) ([]int, error) {
	n := d.PageCount()
	if len(pages) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	for _, p := range pages {
		if p < 1 || p > n {
			return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, p)
		}
	}
	return pages, nil
}

// FromImages は画像1枚につき1ページの新しい文書を生成する。
// 画像はページ全体を覆うように拡大・縮小して配置する。
func FromImages(images ...[]byte) (*Document, error) {
	if len(images) == 0 {
		return nil, ErrNoPages
	}

	readers := make([]io.Reader, 0, len(images))
	for _, img := range images {
		readers = append(readers, bytes.NewReader(img))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, newConfiguration()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Load(buf.Bytes())
}
