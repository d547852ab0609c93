package style

import (
	"context"
	"errors"
	"fmt"

	"cdpsnap/internal/inspect"
	"cdpsnap/internal/logger"
	"cdpsnap/internal/rules"
	"cdpsnap/pkg/model"
)

// Request 单节点解析请求
type Request struct {
	ID     model.NodeID
	Parent *Map
	Root   bool
	// WithRules 为 false 时只获取计算样式（hover 轮）
	WithRules bool
}

// Resolved 单节点解析结果
type Resolved struct {
	Style       *Map
	Interactive map[string]string
	Rules       []rules.Rule
	// Computed 原始计算样式，SVG 注入与根变量修剪使用
	Computed []model.StyleProperty
}

// Resolver 逐节点获取并净化样式
type Resolver struct {
	insp   inspect.Inspector
	engine *rules.Engine
	log    logger.Logger
}

func NewResolver(insp inspect.Inspector, l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNop()
	}
	return &Resolver{insp: insp, engine: rules.New(), log: l}
}

// Resolve 两项获取都失败时返回错误，任一成功即返回部分结果
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	res := &Resolved{Style: NewMap(), Interactive: map[string]string{}}

	computed, cerr := r.insp.ComputedStyle(ctx, req.ID)
	if cerr == nil {
		res.Computed = computed
		res.Style = Purify(computed, req.Parent, req.Root)
		res.Interactive = Interactive(computed)
		if req.Root && req.WithRules {
			if rv, ok := rules.RootVariablesRule(computed); ok {
				res.Rules = append(res.Rules, rv)
			}
		}
	} else {
		r.log.Debug("获取计算样式失败", "node", int(req.ID), "error", cerr)
	}

	if !req.WithRules {
		if cerr != nil {
			return nil, fmt.Errorf("resolve node %d: %w", req.ID, cerr)
		}
		return res, nil
	}

	matched, merr := r.insp.MatchedStyles(ctx, req.ID)
	if merr != nil {
		r.log.Debug("获取匹配规则失败", "node", int(req.ID), "error", merr)
		if cerr != nil {
			return nil, fmt.Errorf("resolve node %d: %w", req.ID, errors.Join(cerr, merr))
		}
		return res, nil
	}
	res.Rules = append(res.Rules, r.engine.Reduce(rules.Ctx{Matched: matched, Root: req.Root})...)
	return res, nil
}
