// Package state 控制捕获期间页面的交互状态：批量强制伪类，以及冻结过渡/动画。
//
// 控制器记录自己施加过的一切（强制过伪类的节点、注入的样式），
// Restore 按记录逐项撤销，失败时重试，剩余失败只记录日志不返回。
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"cdpsnap/internal/inspect"
	"cdpsnap/internal/logger"
	"cdpsnap/pkg/model"
)

// PseudoHover 强制 hover 的伪类集合
var PseudoHover = []string{"hover"}

const freezeCSS = `*, *::before, *::after {
  transition-duration: 0s !important;
  transition-delay: 0s !important;
  animation-duration: 0s !important;
  animation-delay: 0s !important;
}`

// Config 控制器参数
type Config struct {
	Concurrency    int
	SettleDelay    time.Duration
	FreezeStyleID  string
	CleanupRetries int
	Logger         logger.Logger
}

// Controller 交互状态控制器，与一次捕获绑定
type Controller struct {
	insp inspect.Inspector
	cfg  Config
	log  logger.Logger

	mu      sync.Mutex
	touched map[model.NodeID]struct{}
	frozen  bool
}

// New 创建控制器
func New(insp inspect.Inspector, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.FreezeStyleID == "" {
		cfg.FreezeStyleID = "cdpsnap-disable-transitions"
	}
	return &Controller{
		insp:    insp,
		cfg:     cfg,
		log:     cfg.Logger,
		touched: make(map[model.NodeID]struct{}),
	}
}

// ForcePseudoState 对每个节点并发施加伪类集合（空集合表示清除），
// 单节点失败被容忍，返回失败的节点数
func (c *Controller) ForcePseudoState(ctx context.Context, ids []model.NodeID, classes []string) int {
	if len(classes) > 0 {
		c.mu.Lock()
		for _, id := range ids {
			c.touched[id] = struct{}{}
		}
		c.mu.Unlock()
	}
	failed := c.fanOut(ctx, ids, classes)
	if len(classes) == 0 {
		c.mu.Lock()
		for _, id := range ids {
			if _, bad := failed[id]; !bad {
				delete(c.touched, id)
			}
		}
		c.mu.Unlock()
	}
	if len(failed) > 0 {
		c.log.Debug("部分节点强制伪类失败", "classes", classes, "failed", len(failed), "total", len(ids))
	}
	return len(failed)
}

func (c *Controller) fanOut(ctx context.Context, ids []model.NodeID, classes []string) map[model.NodeID]struct{} {
	var mu sync.Mutex
	failed := make(map[model.NodeID]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := c.insp.ForcePseudoState(gctx, id, classes); err != nil {
				mu.Lock()
				failed[id] = struct{}{}
				mu.Unlock()
				c.log.Debug("强制伪类失败", "node", int(id), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// FreezeTransitions 注入或移除冻结样式。启用时在同一次执行中强制一次同步布局
func (c *Controller) FreezeTransitions(ctx context.Context, enable bool) error {
	if enable {
		c.mu.Lock()
		c.frozen = true
		c.mu.Unlock()

		raw, err := c.insp.Evaluate(ctx, freezeScript(c.cfg.FreezeStyleID))
		if err != nil {
			return fmt.Errorf("freeze transitions: %w", err)
		}
		if !gjson.GetBytes(raw, "installed").Bool() {
			return fmt.Errorf("freeze transitions: style not installed")
		}
		return nil
	}

	raw, err := c.insp.Evaluate(ctx, unfreezeScript(c.cfg.FreezeStyleID))
	if err != nil {
		return fmt.Errorf("unfreeze transitions: %w", err)
	}
	c.mu.Lock()
	c.frozen = false
	c.mu.Unlock()
	if !gjson.GetBytes(raw, "removed").Bool() {
		c.log.Debug("冻结样式不存在", "id", c.cfg.FreezeStyleID)
	}
	return nil
}

// Settle 等待样式与布局重算收敛
func (c *Controller) Settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dirty 是否仍有未撤销的页面修改
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen || len(c.touched) > 0
}

// Restore 撤销冻结样式与所有强制伪类。可重复调用，不返回错误
func (c *Controller) Restore(ctx context.Context) {
	attempts := c.cfg.CleanupRetries + 1
	for i := 0; i < attempts; i++ {
		c.mu.Lock()
		frozen := c.frozen
		c.mu.Unlock()
		if !frozen {
			break
		}
		if err := c.FreezeTransitions(ctx, false); err != nil {
			c.log.Warn("移除冻结样式失败", "attempt", i+1, "error", err)
		}
	}

	for i := 0; i < attempts; i++ {
		ids := c.pending()
		if len(ids) == 0 {
			break
		}
		if failed := c.ForcePseudoState(ctx, ids, nil); failed > 0 {
			c.log.Warn("清除强制伪类失败", "attempt", i+1, "failed", failed)
		}
	}

	if c.Dirty() {
		c.log.Warn("页面状态未能完全恢复", "frozen", c.isFrozen(), "forced", len(c.pending()))
	}
}

func (c *Controller) pending() []model.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]model.NodeID, 0, len(c.touched))
	for id := range c.touched {
		ids = append(ids, id)
	}
	return ids
}

func (c *Controller) isFrozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

func freezeScript(id string) string {
	return fmt.Sprintf(`(function () {
  var existing = document.getElementById(%q);
  if (!existing) {
    var style = document.createElement("style");
    style.id = %q;
    style.textContent = %q;
    (document.head || document.documentElement).appendChild(style);
  }
  void document.documentElement.offsetHeight;
  return { installed: true };
})()`, id, id, freezeCSS)
}

func unfreezeScript(id string) string {
	return fmt.Sprintf(`(function () {
  var style = document.getElementById(%q);
  if (!style) { return { removed: false }; }
  style.remove();
  return { removed: true };
})()`, id)
}
