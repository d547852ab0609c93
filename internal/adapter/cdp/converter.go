package cdp

import (
	"github.com/mafredri/cdp/protocol/css"
	"github.com/mafredri/cdp/protocol/dom"

	"cdpsnap/pkg/model"
)

// ToNeutralNode 将 DOM.getDocument 返回的节点树转换为中立模型（显式栈，不递归）
func ToNeutralNode(root *dom.Node) *model.Node {
	if root == nil {
		return nil
	}
	type frame struct {
		src *dom.Node
		dst *model.Node
	}
	out := convertNode(root)
	stack := []frame{{src: root, dst: out}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for i := range f.src.PseudoElements {
			c := convertNode(&f.src.PseudoElements[i])
			f.dst.PseudoElements = append(f.dst.PseudoElements, c)
			stack = append(stack, frame{src: &f.src.PseudoElements[i], dst: c})
		}
		for i := range f.src.Children {
			c := convertNode(&f.src.Children[i])
			f.dst.Children = append(f.dst.Children, c)
			stack = append(stack, frame{src: &f.src.Children[i], dst: c})
		}
	}
	return out
}

func convertNode(n *dom.Node) *model.Node {
	return &model.Node{
		ID:         model.NodeID(n.NodeID),
		Type:       n.NodeType,
		Name:       n.NodeName,
		Value:      n.NodeValue,
		Attributes: ToAttrs(n.Attributes),
	}
}

// ToAttrs 将协议中 [name, value, name, value...] 形式的属性展开
func ToAttrs(flat []string) []model.Attr {
	if len(flat) == 0 {
		return nil
	}
	out := make([]model.Attr, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out = append(out, model.Attr{Name: flat[i], Value: flat[i+1]})
	}
	return out
}

// ToStyleProperties 转换计算样式
func ToStyleProperties(props []css.ComputedStyleProperty) []model.StyleProperty {
	out := make([]model.StyleProperty, 0, len(props))
	for _, p := range props {
		out = append(out, model.StyleProperty{Name: p.Name, Value: p.Value})
	}
	return out
}

// ToMatchedStyles 转换匹配规则链
func ToMatchedStyles(reply *css.GetMatchedStylesForNodeReply) *model.MatchedStyles {
	if reply == nil {
		return &model.MatchedStyles{}
	}
	ms := &model.MatchedStyles{
		InlineCSS: styleText(reply.InlineStyle),
		Rules:     toRules(reply.MatchedCSSRules),
	}
	for _, e := range reply.Inherited {
		ms.Inherited = append(ms.Inherited, model.InheritedEntry{
			InlineCSS: styleText(e.InlineStyle),
			Rules:     toRules(e.MatchedCSSRules),
		})
	}
	return ms
}

func toRules(matches []css.RuleMatch) []model.CSSRule {
	out := make([]model.CSSRule, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.CSSRule{
			Selector: m.Rule.SelectorList.Text,
			CSSText:  styleText(&m.Rule.Style),
			Origin:   string(m.Rule.Origin),
		})
	}
	return out
}

func styleText(s *css.Style) string {
	if s == nil || s.CSSText == nil {
		return ""
	}
	return *s.CSSText
}
