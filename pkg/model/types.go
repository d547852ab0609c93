package model

import (
	"github.com/tidwall/sjson"
)

type TargetID string
type CaptureID string

// NodeID 在一次文档快照内唯一，跨快照或重新加载不稳定
type NodeID int

// DOM 节点类型，取值与 DevTools 协议一致
const (
	NodeTypeElement  = 1
	NodeTypeText     = 3
	NodeTypeComment  = 8
	NodeTypeDocument = 9
)

type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Node DOM.getDocument 快照中一个节点的中立模型
type Node struct {
	ID             NodeID  `json:"id"`
	Type           int     `json:"type"`
	Name           string  `json:"name"`
	Value          string  `json:"value,omitempty"`
	Attributes     []Attr  `json:"attributes,omitempty"`
	Children       []*Node `json:"children,omitempty"`
	PseudoElements []*Node `json:"pseudoElements,omitempty"`
}

// Attr 返回指定属性的值
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// IsPseudo 是否为 ::before/::after 等生成的伪元素节点
func (n *Node) IsPseudo() bool {
	return len(n.Name) > 2 && n.Name[:2] == "::"
}

type StyleProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CSSRule 一条匹配规则，Origin 取协议中的 StyleSheetOrigin
type CSSRule struct {
	Selector string `json:"selector"`
	CSSText  string `json:"cssText"`
	Origin   string `json:"origin"`
}

// OriginUserAgent 浏览器内置样式表来源
const OriginUserAgent = "user-agent"

type InheritedEntry struct {
	InlineCSS string    `json:"inlineCSS,omitempty"`
	Rules     []CSSRule `json:"rules,omitempty"`
}

// MatchedStyles 节点的规则链：自身规则 + 祖先继承规则（由近到远）
type MatchedStyles struct {
	InlineCSS string           `json:"inlineCSS,omitempty"`
	Rules     []CSSRule        `json:"rules,omitempty"`
	Inherited []InheritedEntry `json:"inherited,omitempty"`
}

// LayoutSize 捕获根节点的盒尺寸，Auto 表示几何查询失败时的占位值
type LayoutSize struct {
	Width  float64
	Height float64
	Auto   bool
}

// AutoLayout 几何查询失败时的默认值
func AutoLayout() LayoutSize { return LayoutSize{Auto: true} }

// MarshalJSON 以 {"width":..,"height":..} 输出，Auto 时两项均为 "auto"
func (l LayoutSize) MarshalJSON() ([]byte, error) {
	out := []byte(`{}`)
	var err error
	if l.Auto {
		if out, err = sjson.SetBytes(out, "width", "auto"); err != nil {
			return nil, err
		}
		return sjson.SetBytes(out, "height", "auto")
	}
	if out, err = sjson.SetBytes(out, "width", l.Width); err != nil {
		return nil, err
	}
	return sjson.SetBytes(out, "height", l.Height)
}

// CaptureResult 一次捕获的输出，生成后不再修改
type CaptureResult struct {
	ID     CaptureID  `json:"id"`
	Markup string     `json:"markup"`
	Layout LayoutSize `json:"layout"`
	Nodes  int        `json:"nodes"`
	Bloat  Bloat      `json:"bloat"`
}

// Bloat 输出体积分析
type Bloat struct {
	TotalBytes    int `json:"totalBytes"`
	ApproxTokens  int `json:"approxTokens"`
	Base64Images  int `json:"base64Images"`
	Base64Bytes   int `json:"base64Bytes"`
	SVGCount      int `json:"svgCount"`
	SVGBytes      int `json:"svgBytes"`
	StyleBytes    int `json:"styleBytes"`
	RuleBytes     int `json:"ruleBytes"`
	VariableBytes int `json:"variableBytes"`
}

type TargetInfo struct {
	ID       TargetID `json:"id"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Attached bool     `json:"attached"`
}

// 事件类型
const (
	EventCaptureStarted   = "capture_started"
	EventCaptureStage     = "capture_stage"
	EventCaptureCompleted = "capture_completed"
	EventCaptureFailed    = "capture_failed"
)

// Event 发往展示层的通知，发送方从不阻塞等待读取
type Event struct {
	Type      string      `json:"type"`
	Capture   CaptureID   `json:"capture"`
	Target    TargetID    `json:"target"`
	Stage     string      `json:"stage,omitempty"`
	Layout    *LayoutSize `json:"layout,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
