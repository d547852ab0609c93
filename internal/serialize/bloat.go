package serialize

import (
	"regexp"

	"cdpsnap/pkg/model"
)

var (
	svgRe     = regexp.MustCompile(`(?s)<svg\b.*?</svg>`)
	styleRe   = regexp.MustCompile(`\sstyle="[^"]*"`)
	rulesRe   = regexp.MustCompile(`\s` + AttrRules + `="[^"]*"`)
	varsRe    = regexp.MustCompile(`\s` + AttrVars + `="[^"]*"`)
	payloadRe = regexp.MustCompile(`data:image/[^'"()\s]*`)
)

// Inspect 统计输出中各类内容的体积
func Inspect(markup string) model.Bloat {
	b := model.Bloat{
		TotalBytes:   len(markup),
		ApproxTokens: len(markup) / 4,
	}
	for _, m := range payloadRe.FindAllString(markup, -1) {
		b.Base64Images++
		b.Base64Bytes += len(m)
	}
	for _, m := range svgRe.FindAllString(markup, -1) {
		b.SVGCount++
		b.SVGBytes += len(m)
	}
	b.StyleBytes = sumLen(styleRe.FindAllString(markup, -1))
	b.RuleBytes = sumLen(rulesRe.FindAllString(markup, -1))
	b.VariableBytes = sumLen(varsRe.FindAllString(markup, -1))
	return b
}

func sumLen(ss []string) int {
	n := 0
	for _, s := range ss {
		n += len(s)
	}
	return n
}
