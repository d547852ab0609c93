package rules

import (
	"regexp"
	"strings"

	"cdpsnap/pkg/model"
)

// Provenance 规则来源
type Provenance int

const (
	OwnRule Provenance = iota
	Inherited
	RootVariables
)

func (p Provenance) String() string {
	switch p {
	case OwnRule:
		return "own"
	case Inherited:
		return "inherited"
	case RootVariables:
		return "root-variables"
	default:
		return "unknown"
	}
}

// RootSelector 根变量规则的选择器
const RootSelector = ":root"

// InlineSelector 祖先行内样式在继承链中的选择器
const InlineSelector = "element.style"

// Rule 归约后的一条规则，Body 为声明文本
type Rule struct {
	Selector   string
	Body       string
	Provenance Provenance
}

// Engine 匹配规则链归约器
type Engine struct{}

func New() *Engine { return &Engine{} }

// Ctx 一个节点的归约输入
type Ctx struct {
	Matched *model.MatchedStyles
	Root    bool
}

// Reduce 保留非浏览器内置的自身规则；继承规则只保留被引用的自定义属性
// 以及尚未被更近规则定义的普通属性，每个属性名只归属一条继承规则
func (e *Engine) Reduce(ctx Ctx) []Rule {
	ms := ctx.Matched
	if ms == nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, d := range ParseDeclarations(ms.InlineCSS) {
		seen[d.Name] = true
	}

	var out []Rule
	var ownText strings.Builder
	ownText.WriteString(ms.InlineCSS)
	for _, r := range ms.Rules {
		if r.Origin == model.OriginUserAgent {
			continue
		}
		body := r.CSSText
		if ctx.Root {
			body = ScrubRootRule(body)
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		for _, d := range ParseDeclarations(body) {
			seen[d.Name] = true
		}
		ownText.WriteByte(' ')
		ownText.WriteString(body)
		out = append(out, Rule{Selector: r.Selector, Body: body, Provenance: OwnRule})
	}

	used := UsedVariables(ownText.String())
	for _, entry := range ms.Inherited {
		// 同一祖先内：行内样式优先，其余规则后出现者优先
		if r, ok := inheritedRule(InlineSelector, entry.InlineCSS, seen, used); ok {
			out = append(out, r)
		}
		for i := len(entry.Rules) - 1; i >= 0; i-- {
			src := entry.Rules[i]
			if src.Origin == model.OriginUserAgent {
				continue
			}
			if r, ok := inheritedRule(src.Selector, src.CSSText, seen, used); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

func inheritedRule(selector, body string, seen map[string]bool, used map[string]bool) (Rule, bool) {
	var keep []Decl
	for _, d := range ParseDeclarations(body) {
		if seen[d.Name] {
			continue
		}
		if IsCustomProperty(d.Name) && !used[d.Name] {
			continue
		}
		seen[d.Name] = true
		keep = append(keep, d)
	}
	if len(keep) == 0 {
		return Rule{}, false
	}
	return Rule{Selector: selector, Body: FormatDeclarations(keep), Provenance: Inherited}, true
}

// RootVariablesRule 由捕获根的计算样式中的自定义属性构造 :root 规则
func RootVariablesRule(props []model.StyleProperty) (Rule, bool) {
	var vars []Decl
	for _, p := range props {
		if IsCustomProperty(p.Name) {
			vars = append(vars, Decl{Name: p.Name, Value: strings.TrimSpace(p.Value)})
		}
	}
	if len(vars) == 0 {
		return Rule{}, false
	}
	return Rule{Selector: RootSelector, Body: FormatDeclarations(vars), Provenance: RootVariables}, true
}

var rootPlacement = map[string]bool{
	"margin": true, "margin-top": true, "margin-right": true, "margin-bottom": true, "margin-left": true,
	"margin-block": true, "margin-block-start": true, "margin-block-end": true,
	"margin-inline": true, "margin-inline-start": true, "margin-inline-end": true,
	"top": true, "right": true, "bottom": true, "left": true,
	"inset": true, "inset-block": true, "inset-block-start": true, "inset-block-end": true,
	"inset-inline": true, "inset-inline-start": true, "inset-inline-end": true,
	"align-self": true, "justify-self": true, "place-self": true,
	"flex": true, "flex-grow": true, "flex-shrink": true, "flex-basis": true, "order": true,
	"grid-area": true, "grid-row": true, "grid-row-start": true, "grid-row-end": true,
	"grid-column": true, "grid-column-start": true, "grid-column-end": true,
}

// IsRootPlacement 描述元素在原页面中摆放位置的属性，捕获根上一律剔除
func IsRootPlacement(name string) bool { return rootPlacement[name] }

// ScrubRootRule 从规则文本中按属性名精确删除摆放属性
func ScrubRootRule(body string) string {
	decls := ParseDeclarations(body)
	keep := decls[:0]
	for _, d := range decls {
		if !IsRootPlacement(d.Name) {
			keep = append(keep, d)
		}
	}
	return FormatDeclarations(keep)
}

var varRe = regexp.MustCompile(`var\(\s*(--[A-Za-z0-9_-]+)`)

// UsedVariables 文本中通过 var() 引用的自定义属性名
func UsedVariables(text string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range varRe.FindAllStringSubmatch(text, -1) {
		out[m[1]] = true
	}
	return out
}

// VariableClosure 从 seeds 出发，沿定义中的 var() 引用求传递闭包
func VariableClosure(seeds map[string]bool, defs []Decl) map[string]bool {
	byName := make(map[string]string, len(defs))
	for _, d := range defs {
		byName[d.Name] = d.Value
	}
	out := make(map[string]bool, len(seeds))
	stack := make([]string, 0, len(seeds))
	for name := range seeds {
		stack = append(stack, name)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[name] {
			continue
		}
		out[name] = true
		for ref := range UsedVariables(byName[name]) {
			if !out[ref] {
				stack = append(stack, ref)
			}
		}
	}
	return out
}

// KeepVariables 只保留 keep 中的声明
func KeepVariables(body string, keep map[string]bool) string {
	decls := ParseDeclarations(body)
	out := decls[:0]
	for _, d := range decls {
		if keep[d.Name] {
			out = append(out, d)
		}
	}
	return FormatDeclarations(out)
}
