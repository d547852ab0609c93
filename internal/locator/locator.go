// Package locator 在文档快照中定位带标记属性的目标节点，并枚举其子树的全部节点 ID。
package locator

import (
	"fmt"

	"cdpsnap/pkg/model"
)

// Find 深度优先查找 attr=value 的元素，找不到时返回 ErrTargetNotFound
func Find(root *model.Node, attr, value string) (*model.Node, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", model.ErrTargetNotFound)
	}
	stack := []*model.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == model.NodeTypeElement {
			if v, ok := n.Attr(attr); ok && v == value {
				return n, nil
			}
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil, fmt.Errorf("%w: %s=%q", model.ErrTargetNotFound, attr, value)
}

// CollectIDs 先序收集子树中所有节点 ID，每个节点的伪元素紧随其后、先于子节点
func CollectIDs(root *model.Node) []model.NodeID {
	if root == nil {
		return nil
	}
	var ids []model.NodeID
	stack := []*model.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.ID != 0 {
			ids = append(ids, n.ID)
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
		for i := len(n.PseudoElements) - 1; i >= 0; i-- {
			stack = append(stack, n.PseudoElements[i])
		}
	}
	return ids
}
