package document

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrInvalidTextOptions はテキスト描画のオプションが不正であることを表す。
var ErrInvalidTextOptions = errors.New("テキストの描画オプションが不正です")

// Position はテキストの配置。
type Position string

const (
	// PositionDiagonal はページ中央に45度傾けて配置する。
	PositionDiagonal Position = "diagonal"
	// PositionCenter はページ中央に配置する。
	PositionCenter Position = "center"
	// PositionBottomCenter はページ下端の中央に配置する。
	PositionBottomCenter Position = "bottom"
)

// defaultFont は既定のフォント。PDF標準14フォントのため埋め込み不要。
const defaultFont = "Helvetica"

// RGB は8bitのRGB色。
type RGB struct {
	R, G, B uint8
}

// hex は #RRGGBB 形式の文字列を返す。
func (c RGB) hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseColor は "#RRGGBB" または "RRGGBB" を解析する。空文字列は黒。
func ParseColor(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return RGB{}, nil
	}
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("色は#RRGGBB形式で指定してください: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("色は#RRGGBB形式で指定してください: %q", s)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// TextOptions はテキスト描画のオプション。
type TextOptions struct {
	// FontName は空の場合Helvetica。
	FontName string
	// FontSize はポイント単位。小数は四捨五入する。
	FontSize float64
	Color    RGB
	// Opacity は0から1。
	Opacity float64
	// Position は空の場合PositionDiagonal。
	Position Position
	// Rotation は度単位の反時計回りの回転。PositionDiagonalでは45度に固定する。
	Rotation float64
	// OffsetY は配置位置からの上方向のずれ（ポイント）。
	OffsetY float64
}

// description はpdfcpuのウォーターマーク記述子を組み立てる。
func (o TextOptions) description() (string, error) {
	if o.FontSize <= 0 {
		return "", fmt.Errorf("%w: フォントサイズは正の数です", ErrInvalidTextOptions)
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return "", fmt.Errorf("%w: 不透明度は0から1です", ErrInvalidTextOptions)
	}
	font := o.FontName
	if font == "" {
		font = defaultFont
	}
	points := int(o.FontSize + 0.5)
	if points < 1 {
		points = 1
	}

	parts := []string{
		"fontname:" + font,
		"points:" + strconv.Itoa(points),
		"fillcolor:" + o.Color.hex(),
		"opacity:" + strconv.FormatFloat(o.Opacity, 'f', 2, 64),
		"scalefactor:1 abs",
	}
	switch o.Position {
	case "", PositionDiagonal:
		parts = append(parts, "position:c", "rotation:45")
	case PositionCenter:
		parts = append(parts, "position:c", "rotation:"+strconv.FormatFloat(o.Rotation, 'f', -1, 64))
	case PositionBottomCenter:
		parts = append(parts, "position:bc", "rotation:"+strconv.FormatFloat(o.Rotation, 'f', -1, 64))
	default:
		return "", fmt.Errorf("%w: 未知の配置 %q", ErrInvalidTextOptions, o.Position)
	}
	if o.OffsetY != 0 {
		parts = append(parts, "offset:0 "+strconv.FormatFloat(o.OffsetY, 'f', -1, 64))
	}
	return strings.Join(parts, ", "), nil
}

// DrawText はすべてのページにテキストをそのまま重ねて描く。
func (d *Document) DrawText(text string, opts TextOptions) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: テキストが空です", ErrInvalidTextOptions)
	}
	return d.drawText(escapePlaceholders(text), opts)
}

// escapePlaceholders はpdfcpuが%p, %P, %t, %vを置き換えないように%をエスケープする。
// pdfcpuは%%の直後の文字も置換の対象にするため、置換される文字の前には空白を挟む。
func escapePlaceholders(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '%' {
			j++
		}
		b.WriteString(strings.Repeat("%", j-i+1))
		if j < len(s) && strings.IndexByte("pPtv", s[j]) >= 0 {
			b.WriteByte(' ')
		}
		i = j
	}
	return b.String()
}

// drawText はtextをpdfcpuに渡して描く。%p は各ページのページ番号、%P は総ページ数に置き換えられる。
func (d *Document) drawText(text string, opts TextOptions) error {
	desc, err := opts.description()
	if err != nil {
		return err
	}

	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTextOptions, err)
	}
	src, err := d.Bytes()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(src), &buf, nil, wm, newConfiguration()); err != nil {
		return fmt.Errorf("テキストの描画に失敗: %w", err)
	}
	fresh, err := Load(buf.Bytes())
	if err != nil {
		return err
	}
	*d = *fresh
	return nil
}

// Paginate は各ページの下端中央にページ番号を描く。
func (d *Document) Paginate() error {
	return d.drawText("%p", TextOptions{
		FontName: defaultFont,
		FontSize: 12,
		Opacity:  1,
		Position: PositionBottomCenter,
		OffsetY:  20,
	})
}
