// Package inspecttest 提供内存中的模拟页面，实现 inspect.Inspector，
// 支持按调用序号注入一次性失败，用于验证捕获流程的清理保证。
package inspecttest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"cdpsnap/pkg/model"
)

var styleIDRe = regexp.MustCompile(`getElementById\(['"]([^'"]+)['"]\)`)

// Page 模拟页面模型
type Page struct {
	mu sync.Mutex

	url     string
	root    *model.Node
	nodes   map[model.NodeID]*model.Node
	base    map[model.NodeID][]model.StyleProperty
	hover   map[model.NodeID][]model.StyleProperty
	matched map[model.NodeID]*model.MatchedStyles
	outer   map[model.NodeID]string
	boxes   map[model.NodeID][2]float64

	forced   map[model.NodeID][]string
	injected map[string]bool

	calls      int
	failAt     map[int]bool
	failMethod map[string]map[model.NodeID]bool
	failHover  map[string]map[model.NodeID]bool
	log        []string
}

// NewPage 创建带 <html><body> 的空页面
func NewPage(url string) *Page {
	p := &Page{
		url:        url,
		nodes:      make(map[model.NodeID]*model.Node),
		base:       make(map[model.NodeID][]model.StyleProperty),
		hover:      make(map[model.NodeID][]model.StyleProperty),
		matched:    make(map[model.NodeID]*model.MatchedStyles),
		outer:      make(map[model.NodeID]string),
		boxes:      make(map[model.NodeID][2]float64),
		forced:     make(map[model.NodeID][]string),
		injected:   make(map[string]bool),
		failAt:     make(map[int]bool),
		failMethod: make(map[string]map[model.NodeID]bool),
		failHover:  make(map[string]map[model.NodeID]bool),
	}
	p.root = &model.Node{ID: 1, Type: model.NodeTypeDocument, Name: "#document"}
	p.nodes[1] = p.root
	return p
}

// Root 文档节点
func (p *Page) Root() *model.Node { return p.root }

// Element 创建元素节点，attrs 为交替的名称和值
func (p *Page) Element(id model.NodeID, tag string, attrs ...string) *model.Node {
	n := &model.Node{ID: id, Type: model.NodeTypeElement, Name: strings.ToUpper(tag)}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attributes = append(n.Attributes, model.Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	p.nodes[id] = n
	return n
}

// Pseudo 创建 ::before/::after 节点
func (p *Page) Pseudo(id model.NodeID, kind string) *model.Node {
	n := &model.Node{ID: id, Type: model.NodeTypeElement, Name: "::" + kind}
	p.nodes[id] = n
	return n
}

// Text 创建文本节点
func (p *Page) Text(id model.NodeID, s string) *model.Node {
	n := &model.Node{ID: id, Type: model.NodeTypeText, Name: "#text", Value: s}
	p.nodes[id] = n
	return n
}

// Comment 创建注释节点
func (p *Page) Comment(id model.NodeID, s string) *model.Node {
	n := &model.Node{ID: id, Type: model.NodeTypeComment, Name: "#comment", Value: s}
	p.nodes[id] = n
	return n
}

// Append 追加子节点并返回父节点
func Append(parent *model.Node, children ...*model.Node) *model.Node {
	parent.Children = append(parent.Children, children...)
	return parent
}

// AppendPseudo 追加伪元素节点
func AppendPseudo(parent *model.Node, pseudo ...*model.Node) *model.Node {
	parent.PseudoElements = append(parent.PseudoElements, pseudo...)
	return parent
}

// SetStyle 设置节点基础状态下的计算样式，kv 为交替的属性名和值
func (p *Page) SetStyle(id model.NodeID, kv ...string) { p.base[id] = props(kv) }

// SetHover 设置强制 hover 时覆盖的计算样式
func (p *Page) SetHover(id model.NodeID, kv ...string) { p.hover[id] = props(kv) }

// SetMatched 设置节点的匹配规则链
func (p *Page) SetMatched(id model.NodeID, ms *model.MatchedStyles) { p.matched[id] = ms }

// SetOuterHTML 设置节点的 outerHTML
func (p *Page) SetOuterHTML(id model.NodeID, html string) { p.outer[id] = html }

// SetBox 设置节点的盒尺寸
func (p *Page) SetBox(id model.NodeID, w, h float64) { p.boxes[id] = [2]float64{w, h} }

// FailCall 第 n 次调用（从 1 开始）失败一次
func (p *Page) FailCall(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAt[n] = true
}

// FailMethod 指定方法对指定节点持续失败
func (p *Page) FailMethod(method string, id model.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failMethod[method] == nil {
		p.failMethod[method] = make(map[model.NodeID]bool)
	}
	p.failMethod[method][id] = true
}

// FailWhileHovered 节点处于强制 hover 时，指定方法对其失败
func (p *Page) FailWhileHovered(method string, id model.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failHover[method] == nil {
		p.failHover[method] = make(map[model.NodeID]bool)
	}
	p.failHover[method][id] = true
}

// Calls 已发生的调用次数
func (p *Page) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// CallLog 按顺序记录的方法名
func (p *Page) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

// ForcedNodes 仍带有强制伪类的节点数
func (p *Page) ForcedNodes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.forced {
		if len(c) > 0 {
			n++
		}
	}
	return n
}

// Forced 节点当前的强制伪类
func (p *Page) Forced(id model.NodeID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.forced[id]...)
}

// Injected 页面中是否存在指定 id 的注入样式
func (p *Page) Injected(styleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.injected[styleID]
}

// InjectedCount 注入样式数量
func (p *Page) InjectedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.injected)
}

func (p *Page) enter(method string, id model.NodeID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.log = append(p.log, method)
	if p.failAt[p.calls] {
		delete(p.failAt, p.calls)
		return fmt.Errorf("%w: %s: injected failure #%d", model.ErrCommandFailed, method, p.calls)
	}
	if p.failMethod[method][id] {
		return fmt.Errorf("%w: %s: node %d unavailable", model.ErrCommandFailed, method, id)
	}
	if p.failHover[method][id] && hasClass(p.forced[id], "hover") {
		return fmt.Errorf("%w: %s: node %d unavailable while hovered", model.ErrCommandFailed, method, id)
	}
	return nil
}

func (p *Page) Enable(ctx context.Context) error {
	return p.enter("Enable", 0)
}

func (p *Page) Document(ctx context.Context) (*model.Node, error) {
	if err := p.enter("Document", 0); err != nil {
		return nil, err
	}
	return p.root, nil
}

func (p *Page) ForcePseudoState(ctx context.Context, id model.NodeID, classes []string) error {
	if err := p.enter("ForcePseudoState", id); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[id]; !ok {
		return fmt.Errorf("%w: no node %d", model.ErrCommandFailed, id)
	}
	if len(classes) == 0 {
		delete(p.forced, id)
		return nil
	}
	p.forced[id] = append([]string(nil), classes...)
	return nil
}

func (p *Page) ComputedStyle(ctx context.Context, id model.NodeID) ([]model.StyleProperty, error) {
	if err := p.enter("ComputedStyle", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	base, ok := p.base[id]
	if !ok {
		if _, exists := p.nodes[id]; !exists {
			return nil, fmt.Errorf("%w: no node %d", model.ErrCommandFailed, id)
		}
	}
	out := append([]model.StyleProperty(nil), base...)
	if hasClass(p.forced[id], "hover") {
		for _, h := range p.hover[id] {
			replaced := false
			for i := range out {
				if out[i].Name == h.Name {
					out[i].Value = h.Value
					replaced = true
				}
			}
			if !replaced {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (p *Page) MatchedStyles(ctx context.Context, id model.NodeID) (*model.MatchedStyles, error) {
	if err := p.enter("MatchedStyles", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ms, ok := p.matched[id]; ok {
		return ms, nil
	}
	return &model.MatchedStyles{}, nil
}

func (p *Page) OuterHTML(ctx context.Context, id model.NodeID) (string, error) {
	if err := p.enter("OuterHTML", id); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	html, ok := p.outer[id]
	if !ok {
		return "", fmt.Errorf("%w: no outerHTML for %d", model.ErrCommandFailed, id)
	}
	return html, nil
}

func (p *Page) BoxModel(ctx context.Context, id model.NodeID) (float64, float64, error) {
	if err := p.enter("BoxModel", id); err != nil {
		return 0, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.boxes[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: node %d has no box", model.ErrCommandFailed, id)
	}
	return b[0], b[1], nil
}

// Evaluate 识别样式注入、移除与 location 查询脚本
func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	if err := p.enter("Evaluate", 0); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m := styleIDRe.FindStringSubmatch(expression); m != nil {
		switch {
		case strings.Contains(expression, "appendChild"):
			p.injected[m[1]] = true
			return json.RawMessage(`{"installed":true}`), nil
		case strings.Contains(expression, ".remove()"):
			_, had := p.injected[m[1]]
			delete(p.injected, m[1])
			return json.RawMessage(fmt.Sprintf(`{"removed":%t}`, had)), nil
		}
	}
	if strings.Contains(expression, "location.href") {
		b, _ := json.Marshal(p.url)
		return b, nil
	}
	return json.RawMessage(`null`), nil
}

func props(kv []string) []model.StyleProperty {
	out := make([]model.StyleProperty, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.StyleProperty{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func hasClass(classes []string, c string) bool {
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}
