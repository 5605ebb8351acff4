package operation

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/document"
)

// ParsePages はページ指定を解析する。JSON配列（"[2,5]"）とカンマ区切り（"2,5"）を受け付ける。
// 範囲外の番号はここでは拒否せず、抽出時に読み飛ばす。
func ParsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.Validation("pagesを1つ以上指定してください")
	}

	var pages []int
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &pages); err != nil {
			return nil, apperr.Validation("pagesは整数の配列で指定してください")
		}
	} else {
		for _, field := range strings.Split(s, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, apperr.Validation("pagesは整数で指定してください: %q", strings.TrimSpace(field))
			}
			pages = append(pages, n)
		}
	}
	if len(pages) == 0 {
		return nil, apperr.Validation("pagesを1つ以上指定してください")
	}
	return pages, nil
}

func validateSplit(params map[string]string) error {
	_, err := ParsePages(params["pages"])
	return err
}

// parseRotation は回転角を解析する。
func parseRotation(s string) (int, error) {
	deg, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !document.ValidRotation(deg) {
		return 0, apperr.Validation("rotationは0, 90, 180, 270のいずれかです")
	}
	return deg, nil
}

func validateRotate(params map[string]string) error {
	_, err := parseRotation(params["rotation"])
	return err
}

// parseWatermark はウォーターマークのパラメータを解析する。
// text, fontSize, color, opacity は必須、positionは省略時diagonal。
func parseWatermark(params map[string]string) (string, document.TextOptions, error) {
	text := params["text"]
	if strings.TrimSpace(text) == "" {
		return "", document.TextOptions{}, apperr.Validation("textは必須です")
	}

	size, err := strconv.ParseFloat(strings.TrimSpace(params["fontSize"]), 64)
	if err != nil || size <= 0 {
		return "", document.TextOptions{}, apperr.Validation("fontSizeは正の数で指定してください")
	}

	raw := strings.TrimSpace(params["color"])
	if len(raw) != 7 || raw[0] != '#' {
		return "", document.TextOptions{}, apperr.Validation("colorは#RRGGBB形式で指定してください")
	}
	color, err := document.ParseColor(raw)
	if err != nil {
		return "", document.TextOptions{}, apperr.Validation("colorは#RRGGBB形式で指定してください")
	}

	opacity, err := strconv.ParseFloat(strings.TrimSpace(params["opacity"]), 64)
	if err != nil || opacity < 0 || opacity > 1 {
		return "", document.TextOptions{}, apperr.Validation("opacityは0から1の数で指定してください")
	}

	var pos document.Position
	switch params["position"] {
	case "", "diagonal":
		pos = document.PositionDiagonal
	case "center":
		pos = document.PositionCenter
	default:
		return "", document.TextOptions{}, apperr.Validation("positionはdiagonalまたはcenterです")
	}

	return text, document.TextOptions{
		FontSize: size,
		Color:    color,
		Opacity:  opacity,
		Position: pos,
	}, nil
}

func validateWatermark(params map[string]string) error {
	_, _, err := parseWatermark(params)
	return err
}

func validateCompress(params map[string]string) error {
	switch params["quality"] {
	case "low", "medium", "high":
		return nil
	}
	return apperr.Validation("qualityはlow, medium, highのいずれかです")
}

func validatePassword(params map[string]string) error {
	if params["password"] == "" {
		return apperr.Validation("passwordは必須です")
	}
	return nil
}

// officeExtensions は変換を受け付ける拡張子。
var officeExtensions = map[string]bool{
	".doc":  true,
	".docx": true,
	".odt":  true,
	".rtf":  true,
	".ppt":  true,
	".pptx": true,
	".odp":  true,
	".xls":  true,
	".xlsx": true,
	".ods":  true,
}

func acceptOfficeDocument(name string) error {
	if !officeExtensions[strings.ToLower(filepath.Ext(name))] {
		return apperr.Validation("変換できるのはOffice文書（.docx, .odt等）だけです")
	}
	return nil
}
