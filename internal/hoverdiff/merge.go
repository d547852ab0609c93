// Package hoverdiff 对比基础轮与 hover 轮的捕获树，记录交互属性的变化。
package hoverdiff

import (
	"cdpsnap/internal/style"
	"cdpsnap/internal/tree"
)

// Stats 合并统计
type Stats struct {
	Diffed     int
	Mismatched int
}

type pair struct {
	base, hover tree.Node
}

// Merge 成对遍历两棵树，把差异写入 base 树节点的 HoverDiff。
// 某层子节点数量不一致时停止深入该层，节点类型不一致时跳过该对
func Merge(base, hover tree.Node) Stats {
	var st Stats
	stack := []pair{{base, hover}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch b := p.base.(type) {
		case *tree.Element:
			h, ok := p.hover.(*tree.Element)
			if !ok {
				st.Mismatched++
				continue
			}
			if d := Diff(b.Interactive, h.Interactive); d != nil {
				b.HoverDiff = d
				st.Diffed++
			}
			if len(b.Children) != len(h.Children) {
				st.Mismatched++
				continue
			}
			for i := len(b.Children) - 1; i >= 0; i-- {
				stack = append(stack, pair{b.Children[i], h.Children[i]})
			}
		case *tree.Vector:
			h, ok := p.hover.(*tree.Vector)
			if !ok {
				st.Mismatched++
				continue
			}
			if d := Diff(b.Interactive, h.Interactive); d != nil {
				b.HoverDiff = d
				st.Diffed++
			}
		case *tree.Text:
			if _, ok := p.hover.(*tree.Text); !ok {
				st.Mismatched++
			}
		}
	}
	return st
}

// Diff 返回 hover 值非空且与基础值不同的交互属性，无差异时返回 nil
func Diff(base, hover map[string]string) *style.Map {
	var out *style.Map
	for _, prop := range style.InteractiveProperties {
		hv := hover[prop]
		if hv == "" || hv == base[prop] {
			continue
		}
		if out == nil {
			out = style.NewMap()
		}
		out.Set(prop, hv)
	}
	return out
}
