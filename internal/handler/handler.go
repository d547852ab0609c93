package handler

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"cdpsnap/internal/hoverdiff"
	"cdpsnap/internal/inspect"
	"cdpsnap/internal/layout"
	"cdpsnap/internal/locator"
	"cdpsnap/internal/logger"
	"cdpsnap/internal/serialize"
	"cdpsnap/internal/state"
	"cdpsnap/internal/tree"
	"cdpsnap/pkg/model"
)

// 流程阶段名，出现在 capture_stage 事件与 CaptureError 中
const (
	StageEnable    = "enable"
	StageLocate    = "locate"
	StageBase      = "base"
	StageFreeze    = "freeze"
	StageHover     = "hover"
	StageRestore   = "restore"
	StageMerge     = "merge"
	StageSerialize = "serialize"
	StageLayout    = "layout"
)

const locationScript = `location.href`

// Handler 捕获流程编排器，负责按顺序驱动定位、两轮捕获、恢复、合并与序列化
type Handler struct {
	cfg    Config
	events chan<- model.Event
	log    logger.Logger
}

// Config 配置选项
type Config struct {
	MarkerAttribute   string
	Concurrency       int
	SettleDelay       time.Duration
	FreezeStyleID     string
	CleanupRetries    int
	CleanupTimeout    time.Duration
	TruncateThreshold int
	TruncateKeep      int
	Events            chan<- model.Event
	Logger            logger.Logger
}

// Request 一次捕获请求
type Request struct {
	ID     model.CaptureID
	Target model.TargetID
	Marker string
	// PageURL 页面地址查询失败时用于补全相对地址
	PageURL string
}

// New 创建捕获流程编排器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.MarkerAttribute == "" {
		cfg.MarkerAttribute = "data-cdpsnap-id"
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	return &Handler{cfg: cfg, events: cfg.Events, log: cfg.Logger}
}

// Capture 执行一次完整捕获。无论成功与否，返回前都会撤销强制伪类与冻结样式
func (h *Handler) Capture(ctx context.Context, insp inspect.Inspector, req Request) (*model.CaptureResult, error) {
	l := h.log.With("capture", string(req.ID), "target", string(req.Target))
	start := time.Now()
	h.emit(model.Event{Type: model.EventCaptureStarted, Capture: req.ID, Target: req.Target})

	res, stage, err := h.run(ctx, insp, req, l)
	if err != nil {
		err = model.CaptureFailed(stage, err)
		l.Err(err, "捕获失败", "stage", stage, "duration", time.Since(start))
		h.emit(model.Event{Type: model.EventCaptureFailed, Capture: req.ID, Target: req.Target, Stage: stage, Error: err.Error()})
		return nil, err
	}

	l.Info("捕获完成", "nodes", res.Nodes, "bytes", res.Bloat.TotalBytes, "duration", time.Since(start))
	layoutCopy := res.Layout
	h.emit(model.Event{Type: model.EventCaptureCompleted, Capture: req.ID, Target: req.Target, Layout: &layoutCopy})
	return res, nil
}

func (h *Handler) run(ctx context.Context, insp inspect.Inspector, req Request, l logger.Logger) (*model.CaptureResult, string, error) {
	h.stage(req, StageEnable)
	if err := insp.Enable(ctx); err != nil {
		return nil, StageEnable, err
	}

	h.stage(req, StageLocate)
	doc, err := insp.Document(ctx)
	if err != nil {
		return nil, StageLocate, err
	}
	root, err := locator.Find(doc, h.cfg.MarkerAttribute, req.Marker)
	if err != nil {
		return nil, StageLocate, err
	}
	ids := locator.CollectIDs(root)
	l.Debug("定位目标节点", "node", int(root.ID), "subtree", len(ids))

	ctrl := state.New(insp, state.Config{
		Concurrency:    h.cfg.Concurrency,
		SettleDelay:    h.cfg.SettleDelay,
		FreezeStyleID:  h.cfg.FreezeStyleID,
		CleanupRetries: h.cfg.CleanupRetries,
		Logger:         l,
	})
	defer h.restore(ctx, ctrl)

	capturer := tree.NewCapturer(insp, l)

	h.stage(req, StageBase)
	ctrl.ForcePseudoState(ctx, ids, nil)
	baseTree, err := capturer.Capture(ctx, root, tree.PassBase)
	if err != nil {
		return nil, StageBase, err
	}

	h.stage(req, StageFreeze)
	if err := ctrl.FreezeTransitions(ctx, true); err != nil {
		l.Warn("冻结过渡失败，继续捕获 hover 状态", "error", err)
	}

	h.stage(req, StageHover)
	if failed := ctrl.ForcePseudoState(ctx, ids, state.PseudoHover); failed > 0 {
		l.Debug("部分节点未能进入 hover", "failed", failed)
	}
	if err := ctrl.Settle(ctx); err != nil {
		return nil, StageHover, err
	}
	hoverTree, err := capturer.CaptureHover(ctx, root, baseTree)
	if err != nil {
		return nil, StageHover, err
	}

	h.stage(req, StageRestore)
	h.restore(ctx, ctrl)

	h.stage(req, StageMerge)
	st := hoverdiff.Merge(baseTree, hoverTree)
	if st.Mismatched > 0 {
		l.Debug("hover 树结构不一致，部分节点未比较", "mismatched", st.Mismatched)
	}
	tree.Prune(baseTree)
	tree.PruneRootVariables(baseTree)

	h.stage(req, StageSerialize)
	ser := serialize.New(serialize.Options{
		BaseURL:    h.pageURL(ctx, insp, req, l),
		MarkerAttr: h.cfg.MarkerAttribute,
		Truncator:  serialize.NewTruncator(h.cfg.TruncateThreshold, h.cfg.TruncateKeep),
	})
	markup := ser.Render(baseTree)
	bloat := serialize.Inspect(markup)
	l.Debug("输出体积", "bytes", bloat.TotalBytes, "tokens", bloat.ApproxTokens,
		"base64", bloat.Base64Bytes, "svg", bloat.SVGBytes, "rules", bloat.RuleBytes, "vars", bloat.VariableBytes)

	h.stage(req, StageLayout)
	size := layout.Probe(ctx, insp, root.ID, l)

	return &model.CaptureResult{
		ID:     req.ID,
		Markup: markup,
		Layout: size,
		Nodes:  tree.Count(baseTree),
		Bloat:  bloat,
	}, "", nil
}

// restore 使用不随调用方取消的上下文，保证清理命令能够发出
func (h *Handler) restore(ctx context.Context, ctrl *state.Controller) {
	if !ctrl.Dirty() {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.CleanupTimeout)
	defer cancel()
	ctrl.Restore(cctx)
}

func (h *Handler) pageURL(ctx context.Context, insp inspect.Inspector, req Request, l logger.Logger) string {
	raw, err := insp.Evaluate(ctx, locationScript)
	if err != nil {
		l.Debug("获取页面地址失败，使用目标地址", "error", err)
		return req.PageURL
	}
	if u := gjson.ParseBytes(raw).String(); u != "" {
		return u
	}
	return req.PageURL
}

func (h *Handler) stage(req Request, name string) {
	h.emit(model.Event{Type: model.EventCaptureStage, Capture: req.ID, Target: req.Target, Stage: name})
}

// emit 非阻塞发送，没有读取方时丢弃
func (h *Handler) emit(evt model.Event) {
	if h.events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case h.events <- evt:
	default:
	}
}
