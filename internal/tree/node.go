// Package tree 定义捕获树节点并实现逐节点的子树捕获。
package tree

import (
	"cdpsnap/internal/rules"
	"cdpsnap/internal/style"
	"cdpsnap/pkg/model"
)

// Node 捕获树节点：*Element、*Text 或 *Vector
type Node interface {
	node()
}

// Element 普通元素。Pseudo 非空表示由 ::before/::after 生成
type Element struct {
	ID          model.NodeID
	Tag         string
	Attrs       []model.Attr
	Style       *style.Map
	Rules       []rules.Rule
	Children    []Node
	HoverDiff   *style.Map
	Pseudo      string
	Interactive map[string]string
}

// Text 去除首尾空白后的文本
type Text struct {
	Content string
}

// Vector 原样输出的 SVG 片段
type Vector struct {
	ID          model.NodeID
	Markup      string
	Style       *style.Map
	HoverDiff   *style.Map
	Interactive map[string]string
}

func (*Element) node() {}
func (*Text) node()    {}
func (*Vector) node()  {}

// Walk 先序遍历，fn 返回 false 时不再进入该节点的子节点
func Walk(root Node, fn func(Node) bool) {
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || !fn(n) {
			continue
		}
		if el, ok := n.(*Element); ok {
			for i := len(el.Children) - 1; i >= 0; i-- {
				stack = append(stack, el.Children[i])
			}
		}
	}
}

// Count 节点总数
func Count(root Node) int {
	n := 0
	Walk(root, func(Node) bool { n++; return true })
	return n
}
