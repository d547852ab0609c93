package tree

import (
	"context"
	"fmt"
	"strings"

	"cdpsnap/internal/inspect"
	"cdpsnap/internal/logger"
	"cdpsnap/internal/rules"
	"cdpsnap/internal/style"
	"cdpsnap/pkg/model"
)

// Pass 捕获轮次
type Pass int

const (
	// PassBase 基础状态：样式、规则与 SVG 片段
	PassBase Pass = iota
	// PassHover 强制 hover 状态：只取计算样式
	PassHover
)

func (p Pass) String() string {
	if p == PassHover {
		return "hover"
	}
	return "base"
}

var nonVisual = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true, "template": true,
	"link": true, "meta": true, "base": true, "title": true,
}

// NonVisual 不参与捕获的标签
func NonVisual(tag string) bool { return nonVisual[tag] }

// Capturer 子树捕获器
type Capturer struct {
	insp     inspect.Inspector
	resolver *style.Resolver
	log      logger.Logger
}

func NewCapturer(insp inspect.Inspector, l logger.Logger) *Capturer {
	if l == nil {
		l = logger.NewNop()
	}
	return &Capturer{insp: insp, resolver: style.NewResolver(insp, l), log: l}
}

type frame struct {
	src         *model.Node
	parent      *Element
	parentStyle *style.Map
}

// Capture 以显式栈先序遍历 root 子树。父节点总在子节点之前解析，
// 子节点解析时使用父节点已净化的样式。单节点失败只省略该节点；
// 根节点无法解析时返回错误
func (c *Capturer) Capture(ctx context.Context, root *model.Node, pass Pass) (Node, error) {
	return c.capture(ctx, root, pass, nil)
}

// CaptureHover 在 hover 状态下按 base 树的节点集合再捕获一次。
// base 中没有的节点不进入结果；base 中有但本轮取样式失败的节点
// 保留为没有交互值的占位节点，两棵树因此逐层对齐，根节点失败也不报错
func (c *Capturer) CaptureHover(ctx context.Context, root *model.Node, base Node) (Node, error) {
	keep := make(map[model.NodeID]bool)
	Walk(base, func(n Node) bool {
		switch v := n.(type) {
		case *Element:
			keep[v.ID] = true
		case *Vector:
			keep[v.ID] = true
		}
		return true
	})
	return c.capture(ctx, root, PassHover, keep)
}

func (c *Capturer) capture(ctx context.Context, root *model.Node, pass Pass, keep map[model.NodeID]bool) (Node, error) {
	if root == nil {
		return nil, fmt.Errorf("capture: %w", model.ErrTargetNotFound)
	}
	var result Node
	stack := []frame{{src: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if keep != nil && f.src.Type == model.NodeTypeElement && !keep[f.src.ID] {
			continue
		}

		isRoot := f.src == root
		n, el, err := c.visit(ctx, f, isRoot, pass, keep != nil)
		if err != nil {
			if isRoot {
				return nil, err
			}
			c.log.Debug("省略节点", "node", int(f.src.ID), "pass", pass.String(), "error", err)
			continue
		}
		if n == nil {
			if isRoot {
				return nil, fmt.Errorf("capture root %d is not visual", f.src.ID)
			}
			continue
		}
		if isRoot {
			result = n
		} else {
			f.parent.Children = append(f.parent.Children, n)
		}
		if el == nil {
			continue
		}

		// 伪元素在前、真实子节点在后，逆序压栈以按文档顺序出栈
		var next []frame
		if !el.isPseudo() {
			for _, p := range f.src.PseudoElements {
				next = append(next, frame{src: p, parent: el, parentStyle: el.Style})
			}
		}
		for _, ch := range f.src.Children {
			next = append(next, frame{src: ch, parent: el, parentStyle: el.Style})
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return result, nil
}

func (e *Element) isPseudo() bool { return e.Pseudo != "" }

// visit 返回 (nil, nil, nil) 表示该节点按类型被跳过
// placeholder 为 true 时，样式获取失败的节点以空样式保留
func (c *Capturer) visit(ctx context.Context, f frame, isRoot bool, pass Pass, placeholder bool) (Node, *Element, error) {
	src := f.src
	switch src.Type {
	case model.NodeTypeText:
		s := strings.TrimSpace(src.Value)
		if s == "" {
			return nil, nil, nil
		}
		return &Text{Content: s}, nil, nil
	case model.NodeTypeElement:
	default:
		return nil, nil, nil
	}

	tag := strings.ToLower(src.Name)
	if NonVisual(tag) {
		return nil, nil, nil
	}

	if tag == "svg" {
		return c.vector(ctx, f, isRoot, pass, placeholder)
	}

	res, err := c.resolver.Resolve(ctx, style.Request{
		ID:        src.ID,
		Parent:    f.parentStyle,
		Root:      isRoot,
		WithRules: pass == PassBase,
	})
	if err != nil {
		if !placeholder {
			return nil, nil, err
		}
		res = c.emptyStyle(src.ID, pass, err)
	}
	el := &Element{
		ID:          src.ID,
		Tag:         tag,
		Style:       res.Style,
		Rules:       res.Rules,
		Interactive: res.Interactive,
	}
	if src.IsPseudo() {
		el.Tag = "div"
		el.Pseudo = strings.TrimPrefix(tag, "::")
	} else {
		el.Attrs = append([]model.Attr(nil), src.Attributes...)
	}
	return el, el, nil
}

func (c *Capturer) vector(ctx context.Context, f frame, isRoot bool, pass Pass, placeholder bool) (Node, *Element, error) {
	res, err := c.resolver.Resolve(ctx, style.Request{ID: f.src.ID, Parent: f.parentStyle, Root: isRoot})
	if err != nil {
		if !placeholder {
			return nil, nil, err
		}
		res = c.emptyStyle(f.src.ID, pass, err)
	}
	v := &Vector{ID: f.src.ID, Style: res.Style, Interactive: res.Interactive}
	if pass == PassHover {
		return v, nil, nil
	}
	outer, err := c.insp.OuterHTML(ctx, f.src.ID)
	if err != nil {
		return nil, nil, err
	}
	markup, err := rewriteSVGRoot(outer, res.Computed)
	if err != nil {
		return nil, nil, fmt.Errorf("svg %d: %w", f.src.ID, err)
	}
	v.Markup = markup
	return v, nil, nil
}

func (c *Capturer) emptyStyle(id model.NodeID, pass Pass, err error) *style.Resolved {
	c.log.Debug("样式获取失败，保留占位节点", "node", int(id), "pass", pass.String(), "error", err)
	return &style.Resolved{Style: style.NewMap()}
}

var replaced = map[string]bool{
	"img": true, "input": true, "br": true, "hr": true, "video": true, "audio": true,
	"canvas": true, "textarea": true, "select": true, "button": true, "picture": true,
	"source": true, "embed": true, "object": true, "progress": true, "meter": true,
	"wbr": true, "area": true, "col": true, "track": true,
}

// Prune 删除没有样式、规则、子节点且非替换元素的空元素，根节点始终保留。
// 需要在 hover 合并之后调用，以保持两轮树结构一致
func Prune(root Node) {
	type item struct {
		el   *Element
		done bool
	}
	rootEl, ok := root.(*Element)
	if !ok {
		return
	}
	stack := []item{{el: rootEl}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !it.done {
			stack = append(stack, item{el: it.el, done: true})
			for _, ch := range it.el.Children {
				if e, ok := ch.(*Element); ok {
					stack = append(stack, item{el: e})
				}
			}
			continue
		}
		kept := it.el.Children[:0]
		for _, ch := range it.el.Children {
			if e, ok := ch.(*Element); ok && empty(e) {
				continue
			}
			kept = append(kept, ch)
		}
		it.el.Children = kept
	}
}

func empty(e *Element) bool {
	return e.Style.Len() == 0 && len(e.Rules) == 0 && len(e.Children) == 0 &&
		e.HoverDiff.Len() == 0 && !replaced[e.Tag]
}

// PruneRootVariables 根变量规则只保留子树中（经 var() 传递）实际引用到的变量
func PruneRootVariables(root Node) {
	rootEl, ok := root.(*Element)
	if !ok {
		return
	}
	idx := -1
	for i, r := range rootEl.Rules {
		if r.Provenance == rules.RootVariables {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	seeds := make(map[string]bool)
	add := func(text string) {
		for name := range rules.UsedVariables(text) {
			seeds[name] = true
		}
	}
	Walk(root, func(n Node) bool {
		switch x := n.(type) {
		case *Element:
			x.Style.Each(func(_, v string) { add(v) })
			for i, r := range x.Rules {
				if x == rootEl && i == idx {
					continue
				}
				add(r.Body)
			}
			for _, a := range x.Attrs {
				if a.Name == "style" {
					add(a.Value)
				}
			}
		case *Vector:
			add(x.Markup)
		}
		return true
	})

	defs := rules.ParseDeclarations(rootEl.Rules[idx].Body)
	body := rules.KeepVariables(rootEl.Rules[idx].Body, rules.VariableClosure(seeds, defs))
	if body == "" {
		rootEl.Rules = append(rootEl.Rules[:idx], rootEl.Rules[idx+1:]...)
		return
	}
	rootEl.Rules[idx].Body = body
}
