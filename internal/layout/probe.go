// Package layout 查询捕获根节点的盒尺寸。
package layout

import (
	"context"

	"cdpsnap/internal/inspect"
	"cdpsnap/internal/logger"
	"cdpsnap/pkg/model"
)

// Probe 查询失败时返回 auto 尺寸，不视为错误
func Probe(ctx context.Context, insp inspect.Inspector, id model.NodeID, l logger.Logger) model.LayoutSize {
	w, h, err := insp.BoxModel(ctx, id)
	if err != nil {
		if l != nil {
			l.Debug("获取盒模型失败", "node", int(id), "error", err)
		}
		return model.AutoLayout()
	}
	return model.LayoutSize{Width: w, Height: h}
}
