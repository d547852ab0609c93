// Package inspect 定义捕获流程所需的远程检查命令集合。
//
// 实现方为 internal/cdp 的附加会话；测试使用 inspecttest 的模拟页面。
// 所有方法在单节点不可达时返回包装了 model.ErrCommandFailed 的错误，
// 调用方据此决定跳过该节点而不是中止整个捕获。
package inspect

import (
	"context"
	"encoding/json"

	"cdpsnap/pkg/model"
)

// Inspector 一个已附加目标上的命令面
type Inspector interface {
	// Enable 开启 DOM 与 CSS 域
	Enable(ctx context.Context) error
	// Document 返回完整深度的文档快照
	Document(ctx context.Context) (*model.Node, error)
	ForcePseudoState(ctx context.Context, id model.NodeID, classes []string) error
	ComputedStyle(ctx context.Context, id model.NodeID) ([]model.StyleProperty, error)
	MatchedStyles(ctx context.Context, id model.NodeID) (*model.MatchedStyles, error)
	OuterHTML(ctx context.Context, id model.NodeID) (string, error)
	BoxModel(ctx context.Context, id model.NodeID) (width, height float64, err error)
	// Evaluate 在页面中执行表达式，返回按值序列化的结果
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
}
