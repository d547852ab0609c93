package handler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cdpsnap/internal/inspect/inspecttest"
	"cdpsnap/pkg/model"
)

const freezeID = "test-freeze"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func buttonPage() *inspecttest.Page {
	p := inspecttest.NewPage("https://shop.example.com/app/")
	body := p.Element(2, "body")
	root := p.Element(10, "a", "data-cdpsnap-id", "m1", "class", "btn", "href", "/buy")
	inspecttest.AppendPseudo(root, p.Pseudo(14, "after"))
	inspecttest.Append(root,
		inspecttest.Append(p.Element(11, "span"), p.Text(12, " Buy ")),
		p.Element(13, "svg"),
		p.Element(15, "script"),
	)
	inspecttest.Append(p.Root(), inspecttest.Append(body, root))

	p.SetStyle(10, "color", "#111", "background-color", "#fff", "display", "inline-block", "margin-top", "12px",
		"background-image", "url(/img/bg.png)", "transition-duration", "0.2s")
	p.SetHover(10, "background-color", "#2563eb")
	p.SetMatched(10, &model.MatchedStyles{Rules: []model.CSSRule{
		{Selector: "a", CSSText: "color: -webkit-link;", Origin: model.OriginUserAgent},
		{Selector: ".btn", CSSText: "background: #fff; margin-top: 12px;", Origin: "regular"},
	}})
	p.SetStyle(11, "color", "#111", "font-weight", "600")
	p.SetStyle(14, "content", `"→"`)
	p.SetStyle(13, "width", "12px", "height", "12px", "fill", "#111")
	p.SetHover(13, "fill", "#fff")
	p.SetOuterHTML(13, `<svg width="12" height="12"><path d="M0 0"/></svg>`)
	p.SetBox(10, 120, 32)
	return p
}

func newHandler(events chan model.Event) *Handler {
	return New(Config{
		Concurrency:       4,
		FreezeStyleID:     freezeID,
		CleanupRetries:    2,
		TruncateThreshold: 500,
		TruncateKeep:      30,
		Events:            events,
	})
}

func TestCaptureProducesMarkupAndLayout(t *testing.T) {
	p := buttonPage()
	events := make(chan model.Event, 64)

	res, err := newHandler(events).Capture(context.Background(), p, Request{ID: "c1", Target: "t1", Marker: "m1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Markup, `<a style="color:#111;background-color:#fff;display:inline-block;`), res.Markup)
	assert.True(t, strings.HasSuffix(res.Markup, `</svg></a>`), res.Markup)
	assert.Contains(t, res.Markup, ` data-hover-diff="background-color:#2563eb"`)
	assert.Contains(t, res.Markup, `data-rules=".btn { background: #fff; }"`)
	assert.Contains(t, res.Markup, `url('https://shop.example.com/img/bg.png')`)
	assert.Contains(t, res.Markup, `href="https://shop.example.com/buy"`)
	assert.Contains(t, res.Markup, `data-pseudo="after"`)
	assert.Contains(t, res.Markup, `<span style="font-weight:600">Buy</span>`)
	assert.Contains(t, res.Markup, `<svg data-hover-diff="fill:#fff" style="width:12px;height:12px;fill:#111">`)
	assert.NotContains(t, res.Markup, "margin-top")
	assert.NotContains(t, res.Markup, "data-cdpsnap-id")
	assert.NotContains(t, res.Markup, "script")
	assert.Equal(t, model.LayoutSize{Width: 120, Height: 32}, res.Layout)
	assert.Equal(t, model.CaptureID("c1"), res.ID)
	assert.Equal(t, 5, res.Nodes)
	assert.Equal(t, len(res.Markup), res.Bloat.TotalBytes)

	assert.Zero(t, p.ForcedNodes())
	assert.Zero(t, p.InjectedCount())

	close(events)
	var types []string
	var stages []string
	for evt := range events {
		types = append(types, evt.Type)
		if evt.Type == model.EventCaptureStage {
			stages = append(stages, evt.Stage)
		}
		assert.Equal(t, model.TargetID("t1"), evt.Target)
		assert.NotZero(t, evt.Timestamp)
	}
	assert.Equal(t, model.EventCaptureStarted, types[0])
	assert.Equal(t, model.EventCaptureCompleted, types[len(types)-1])
	assert.Equal(t, []string{StageEnable, StageLocate, StageBase, StageFreeze, StageHover, StageRestore, StageMerge, StageSerialize, StageLayout}, stages)
}

func TestCaptureFreezesBeforeForcingHover(t *testing.T) {
	p := buttonPage()
	_, err := newHandler(nil).Capture(context.Background(), p, Request{ID: "c1", Marker: "m1"})
	require.NoError(t, err)

	log := p.CallLog()
	freezeAt, firstHover := -1, -1
	evaluates := 0
	for i, m := range log {
		if m == "Evaluate" {
			evaluates++
			if freezeAt < 0 {
				freezeAt = i
			}
		}
		// 基础轮第一次清除 + 冻结之后才出现的 ForcePseudoState 属于 hover
		if m == "ForcePseudoState" && freezeAt >= 0 && firstHover < 0 {
			firstHover = i
		}
	}
	require.GreaterOrEqual(t, freezeAt, 0)
	assert.Greater(t, firstHover, freezeAt)
	// 冻结、解冻、页面地址
	assert.Equal(t, 3, evaluates)
}

func TestCaptureTargetNotFound(t *testing.T) {
	p := buttonPage()
	events := make(chan model.Event, 64)
	_, err := newHandler(events).Capture(context.Background(), p, Request{ID: "c2", Marker: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTargetNotFound)

	var ce *model.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageLocate, ce.Stage)

	close(events)
	var last model.Event
	for evt := range events {
		last = evt
	}
	assert.Equal(t, model.EventCaptureFailed, last.Type)
	assert.Equal(t, StageLocate, last.Stage)
}

func TestCaptureLayoutFallsBackToAuto(t *testing.T) {
	p := buttonPage()
	p.FailMethod("BoxModel", 10)
	res, err := newHandler(nil).Capture(context.Background(), p, Request{ID: "c3", Marker: "m1"})
	require.NoError(t, err)
	assert.True(t, res.Layout.Auto)
}

func TestCaptureNeverBlocksOnEvents(t *testing.T) {
	p := buttonPage()
	events := make(chan model.Event)
	_, err := newHandler(events).Capture(context.Background(), p, Request{ID: "c4", Marker: "m1"})
	require.NoError(t, err)
}

// 对成功流程中的每一次调用分别注入一次失败，返回后页面上不得残留强制伪类或冻结样式
func TestCaptureCleanupGuarantee(t *testing.T) {
	clean := buttonPage()
	_, err := newHandler(nil).Capture(context.Background(), clean, Request{ID: "c", Marker: "m1"})
	require.NoError(t, err)
	total := clean.Calls()
	require.Greater(t, total, 10)

	for k := 1; k <= total; k++ {
		p := buttonPage()
		p.FailCall(k)
		_, _ = newHandler(nil).Capture(context.Background(), p, Request{ID: "c", Marker: "m1"})

		assert.Zero(t, p.ForcedNodes(), "forced pseudo-classes left after failure at call %d", k)
		assert.Zero(t, p.InjectedCount(), "freeze style left after failure at call %d", k)
	}
}

func TestCaptureSurvivesRootHoverFailure(t *testing.T) {
	p := buttonPage()
	p.FailWhileHovered("ComputedStyle", 10)
	res, err := newHandler(nil).Capture(context.Background(), p, Request{ID: "c", Marker: "m1"})
	require.NoError(t, err)

	open := res.Markup[:strings.Index(res.Markup, ">")]
	assert.NotContains(t, open, "data-hover-diff")
	assert.Contains(t, res.Markup, `<svg data-hover-diff="fill:#fff"`)
	assert.Zero(t, p.ForcedNodes())
	assert.Zero(t, p.InjectedCount())
}

func TestCaptureHoverFailureKeepsSiblingDiffs(t *testing.T) {
	p := buttonPage()
	p.FailWhileHovered("ComputedStyle", 11)
	res, err := newHandler(nil).Capture(context.Background(), p, Request{ID: "c", Marker: "m1"})
	require.NoError(t, err)

	assert.Contains(t, res.Markup, ` data-hover-diff="background-color:#2563eb"`)
	assert.Contains(t, res.Markup, `<svg data-hover-diff="fill:#fff"`)
	assert.Contains(t, res.Markup, "Buy")
}

func TestCaptureFailsAtHoverWhenCancelled(t *testing.T) {
	p := buttonPage()
	ctx, cancel := context.WithCancel(context.Background())
	h := New(Config{
		Concurrency:   4,
		FreezeStyleID: freezeID,
		SettleDelay:   time.Hour,
	})
	go func() {
		for p.Forced(10) == nil {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := h.Capture(ctx, p, Request{ID: "c", Marker: "m1"})
	require.Error(t, err)
	var ce *model.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageHover, ce.Stage)
	assert.Zero(t, p.ForcedNodes())
	assert.Zero(t, p.InjectedCount())
}
