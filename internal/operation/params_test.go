package operation

import (
	"testing"

	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/document"
)

func TestParsePages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{name: "JSON配列", in: "[2, 5]", want: []int{2, 5}},
		{name: "カンマ区切り", in: "3, 1,3", want: []int{3, 1, 3}},
		{name: "範囲外も解析はする", in: "0,99", want: []int{0, 99}},
		{name: "空文字列", in: " ", wantErr: true},
		{name: "空の配列", in: "[]", wantErr: true},
		{name: "整数でない要素", in: "1,two", wantErr: true},
		{name: "壊れたJSON", in: "[1,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePages(tt.in)
			if tt.wantErr {
				if apperr.KindOf(err) != apperr.KindValidation {
					t.Errorf("ParsePages(%q) error = %v, want ValidationError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePages(%q)でエラーが発生: %v", tt.in, err)
			}
			if !equalInts(got, tt.want) {
				t.Errorf("ParsePages(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseWatermark(t *testing.T) {
	t.Parallel()

	valid := func() map[string]string {
		return map[string]string{"text": "社外秘", "fontSize": "24.5", "color": "#00FF00", "opacity": "0.25"}
	}

	t.Run("positionの省略時はdiagonalになること", func(t *testing.T) {
		t.Parallel()

		text, opts, err := parseWatermark(valid())
		if err != nil {
			t.Fatalf("parseWatermark()でエラーが発生: %v", err)
		}
		if text != "社外秘" || opts.Position != document.PositionDiagonal {
			t.Errorf("text = %q, position = %q", text, opts.Position)
		}
		if opts.Color != (document.RGB{G: 255}) || opts.FontSize != 24.5 || opts.Opacity != 0.25 {
			t.Errorf("opts = %+v", opts)
		}
	})

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "textが空", key: "text", value: ""},
		{name: "fontSizeが0", key: "fontSize", value: "0"},
		{name: "fontSizeが数でない", key: "fontSize", value: "big"},
		{name: "colorに#が無い", key: "color", value: "00FF00"},
		{name: "colorが16進数でない", key: "color", value: "#00GG00"},
		{name: "opacityが1を超える", key: "opacity", value: "1.01"},
		{name: "opacityが無い", key: "opacity", value: ""},
		{name: "positionが未知", key: "position", value: "top"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"場合はValidationErrorになること", func(t *testing.T) {
			t.Parallel()

			params := valid()
			params[tt.key] = tt.value
			if _, _, err := parseWatermark(params); apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}

func TestKinds(t *testing.T) {
	t.Parallel()

	kinds := Kinds()
	if len(kinds) != 10 {
		t.Errorf("種別の数 = %d, want 10", len(kinds))
	}
	for _, k := range []Kind{KindMerge, KindImageToDoc} {
		if !k.MultiInput() {
			t.Errorf("%s は複数入力を受け付けるべき", k)
		}
	}
	for _, k := range []Kind{KindSplit, KindProtect, KindConvert} {
		if k.MultiInput() {
			t.Errorf("%s は単一入力であるべき", k)
		}
	}
	if KindCompress.Strategy() != StrategyExternal || KindRotate.Strategy() != StrategyInProcess {
		t.Error("実行方式の対応が不正")
	}
}
