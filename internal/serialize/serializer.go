// Package serialize 把捕获树渲染为带注解属性的标记文本。
package serialize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"cdpsnap/internal/rules"
	"cdpsnap/internal/tree"
)

// 输出属性名
const (
	AttrHoverDiff = "data-hover-diff"
	AttrRules     = "data-rules"
	AttrVars      = "data-vars"
	AttrPseudo    = "data-pseudo"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

var vectorRefRe = regexp.MustCompile(`(\s(?:xlink:)?(?:href|src))="([^"]*)"`)

// Options 渲染参数
type Options struct {
	BaseURL    string
	MarkerAttr string
	Truncator  Truncator
}

// Serializer 捕获树渲染器
type Serializer struct {
	base   *url.URL
	marker string
	trunc  Truncator
}

// New BaseURL 不是 http/https/file 地址时不做地址补全
func New(opts Options) *Serializer {
	s := &Serializer{marker: opts.MarkerAttr, trunc: opts.Truncator}
	if u, err := url.Parse(opts.BaseURL); err == nil {
		switch u.Scheme {
		case "http", "https", "file":
			s.base = u
		}
	}
	return s
}

type item struct {
	node  tree.Node
	close string
}

// Render 以显式栈渲染整棵树
func (s *Serializer) Render(root tree.Node) string {
	var b strings.Builder
	stack := []item{{node: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.node == nil {
			b.WriteString(it.close)
			continue
		}
		switch n := it.node.(type) {
		case *tree.Text:
			b.WriteString(html.EscapeString(n.Content))
		case *tree.Vector:
			b.WriteString(s.vector(n))
		case *tree.Element:
			s.openTag(&b, n)
			if voidElements[n.Tag] {
				continue
			}
			stack = append(stack, item{close: "</" + n.Tag + ">"})
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, item{node: n.Children[i]})
			}
		}
	}
	return b.String()
}

func (s *Serializer) openTag(b *strings.Builder, el *tree.Element) {
	b.WriteByte('<')
	b.WriteString(el.Tag)

	if el.Style.Len() > 0 {
		var parts []string
		el.Style.Each(func(k, v string) {
			parts = append(parts, k+":"+s.trunc.Apply(AbsolutizeStyle(v, s.base)))
		})
		writeAttr(b, "style", strings.Join(parts, ";"))
	}
	if el.HoverDiff.Len() > 0 {
		writeAttr(b, AttrHoverDiff, el.HoverDiff.String())
	}
	ruleText, varText := s.ruleAttrs(el.Rules)
	if ruleText != "" {
		writeAttr(b, AttrRules, ruleText)
	}
	if varText != "" {
		writeAttr(b, AttrVars, varText)
	}
	if el.Pseudo != "" {
		writeAttr(b, AttrPseudo, el.Pseudo)
	}

	for _, a := range el.Attrs {
		if !s.passThrough(a.Name) {
			continue
		}
		v := a.Value
		switch a.Name {
		case "src", "href", "poster":
			v = Absolutize(v, s.base)
		case "srcset":
			v = AbsolutizeSrcset(v, s.base)
		}
		writeAttr(b, a.Name, s.trunc.Apply(v))
	}
	b.WriteByte('>')
}

func (s *Serializer) passThrough(name string) bool {
	lower := strings.ToLower(name)
	if lower == s.marker || lower == "style" || lower == "class" {
		return false
	}
	return !isEventHandler(lower)
}

// 以 on 开头但不是事件处理器的属性
var notHandlers = map[string]bool{"open": true}

func isEventHandler(name string) bool {
	if len(name) < 3 || !strings.HasPrefix(name, "on") || notHandlers[name] {
		return false
	}
	c := name[2]
	return c >= 'a' && c <= 'z'
}

// ruleAttrs 自身规则与继承的普通属性进入规则属性，自定义属性单独进入变量属性
func (s *Serializer) ruleAttrs(rs []rules.Rule) (string, string) {
	var own, vars []string
	for _, r := range rs {
		switch r.Provenance {
		case rules.OwnRule:
			own = append(own, r.Selector+" { "+s.trunc.Apply(r.Body)+" }")
		case rules.Inherited:
			var regular []rules.Decl
			for _, d := range rules.ParseDeclarations(r.Body) {
				if rules.IsCustomProperty(d.Name) {
					vars = append(vars, d.Name+": "+s.trunc.Apply(d.Value)+";")
				} else {
					regular = append(regular, d)
				}
			}
			if len(regular) > 0 {
				own = append(own, r.Selector+" (inherited) { "+s.trunc.Apply(rules.FormatDeclarations(regular))+" }")
			}
		case rules.RootVariables:
			for _, d := range rules.ParseDeclarations(r.Body) {
				vars = append(vars, d.Name+": "+s.trunc.Apply(d.Value)+";")
			}
		}
	}
	return strings.Join(own, " "), strings.Join(vars, " ")
}

func (s *Serializer) vector(v *tree.Vector) string {
	markup := vectorRefRe.ReplaceAllStringFunc(v.Markup, func(m string) string {
		sub := vectorRefRe.FindStringSubmatch(m)
		return sub[1] + `="` + s.trunc.Apply(Absolutize(sub[2], s.base)) + `"`
	})
	if v.HoverDiff.Len() > 0 {
		var b strings.Builder
		writeAttr(&b, AttrHoverDiff, v.HoverDiff.String())
		markup = strings.Replace(markup, "<svg", "<svg"+b.String(), 1)
	}
	return markup
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(attrEscaper.Replace(value))
	b.WriteByte('"')
}
