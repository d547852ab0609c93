package tree

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"cdpsnap/pkg/model"
)

// 分词器会把属性名转成小写，根标签上常见的驼峰属性需要还原
var svgAttrCase = map[string]string{
	"viewbox":             "viewBox",
	"preserveaspectratio": "preserveAspectRatio",
	"baseprofile":         "baseProfile",
	"zoomandpan":          "zoomAndPan",
}

var errNoSVGRoot = errors.New("svg root tag not found")

// vectorStyle 由原始计算样式生成根标签上的最小样式：尺寸，以及根标签未声明时的 color/fill
func vectorStyle(computed []model.StyleProperty, rootAttrs map[string]bool) string {
	vals := make(map[string]string, len(computed))
	for _, p := range computed {
		vals[p.Name] = p.Value
	}
	var parts []string
	for _, k := range []string{"width", "height"} {
		if v := vals[k]; v != "" && v != "auto" {
			parts = append(parts, k+":"+v)
		}
	}
	for _, k := range []string{"color", "fill"} {
		if rootAttrs[k] {
			continue
		}
		if v := vals[k]; v != "" {
			parts = append(parts, k+":"+v)
		}
	}
	return strings.Join(parts, ";")
}

// rewriteSVGRoot 只改写根 <svg> 标签：去掉 style/width/height，注入 style。
// 根标签之后的字节原样保留
func rewriteSVGRoot(markup string, computed []model.StyleProperty) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var out bytes.Buffer
	pos := 0
	for {
		tt := z.Next()
		pos += len(z.Raw())
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", errNoSVGRoot
			}
			return "", z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "svg" {
				return "", errNoSVGRoot
			}
			present := make(map[string]bool, len(tok.Attr))
			for _, a := range tok.Attr {
				present[a.Key] = true
			}
			out.WriteString("<svg")
			for _, a := range tok.Attr {
				switch a.Key {
				case "style", "width", "height":
					continue
				}
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + key
				}
				if fixed, ok := svgAttrCase[key]; ok {
					key = fixed
				}
				out.WriteString(" " + key + `="` + html.EscapeString(a.Val) + `"`)
			}
			if s := vectorStyle(computed, present); s != "" {
				out.WriteString(` style="` + html.EscapeString(s) + `"`)
			}
			if tt == html.SelfClosingTagToken {
				out.WriteString("/>")
			} else {
				out.WriteString(">")
			}
			out.WriteString(markup[pos:])
			return out.String(), nil
		default:
			// 根标签前的空白或注释
			out.Write(z.Raw())
		}
	}
}
