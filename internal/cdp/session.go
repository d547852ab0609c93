package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/css"
	"github.com/mafredri/cdp/protocol/dom"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	adapter "cdpsnap/internal/adapter/cdp"
	"cdpsnap/pkg/model"
)

// Session 单个目标上的 DevTools 连接，实现 inspect.Inspector
type Session struct {
	target  model.TargetID
	url     string
	conn    *rpcc.Conn
	client  *cdp.Client
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newSession(target model.TargetID, url string, conn *rpcc.Conn, timeout time.Duration) *Session {
	return &Session{
		target:  target,
		url:     url,
		conn:    conn,
		client:  cdp.NewClient(conn),
		timeout: timeout,
	}
}

// URL 附加时目标页面的地址
func (s *Session) URL() string { return s.url }

// Alive 连接是否仍然可用
func (s *Session) Alive() bool {
	return s.conn != nil && s.conn.Context().Err() == nil
}

// Close 关闭连接，可重复调用
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) Enable(ctx context.Context) error {
	return s.call(ctx, "DOM.enable", func(ctx context.Context) error {
		return rpcc.Invoke(ctx, "DOM.enable", nil, nil, s.conn)
	}, func(ctx context.Context) error {
		return s.client.CSS.Enable(ctx)
	})
}

func (s *Session) Document(ctx context.Context) (*model.Node, error) {
	var root *model.Node
	err := s.call(ctx, "DOM.getDocument", func(ctx context.Context) error {
		reply, err := s.client.DOM.GetDocument(ctx, dom.NewGetDocumentArgs().SetDepth(-1))
		if err != nil {
			return err
		}
		root = adapter.ToNeutralNode(&reply.Root)
		return nil
	})
	return root, err
}

func (s *Session) ForcePseudoState(ctx context.Context, id model.NodeID, classes []string) error {
	if classes == nil {
		classes = []string{}
	}
	return s.call(ctx, "CSS.forcePseudoState", func(ctx context.Context) error {
		return s.client.CSS.ForcePseudoState(ctx, css.NewForcePseudoStateArgs(dom.NodeID(id), classes))
	})
}

func (s *Session) ComputedStyle(ctx context.Context, id model.NodeID) ([]model.StyleProperty, error) {
	var props []model.StyleProperty
	err := s.call(ctx, "CSS.getComputedStyleForNode", func(ctx context.Context) error {
		reply, err := s.client.CSS.GetComputedStyleForNode(ctx, css.NewGetComputedStyleForNodeArgs(dom.NodeID(id)))
		if err != nil {
			return err
		}
		props = adapter.ToStyleProperties(reply.ComputedStyle)
		return nil
	})
	return props, err
}

func (s *Session) MatchedStyles(ctx context.Context, id model.NodeID) (*model.MatchedStyles, error) {
	var ms *model.MatchedStyles
	err := s.call(ctx, "CSS.getMatchedStylesForNode", func(ctx context.Context) error {
		reply, err := s.client.CSS.GetMatchedStylesForNode(ctx, css.NewGetMatchedStylesForNodeArgs(dom.NodeID(id)))
		if err != nil {
			return err
		}
		ms = adapter.ToMatchedStyles(reply)
		return nil
	})
	return ms, err
}

func (s *Session) OuterHTML(ctx context.Context, id model.NodeID) (string, error) {
	var html string
	err := s.call(ctx, "DOM.getOuterHTML", func(ctx context.Context) error {
		reply, err := s.client.DOM.GetOuterHTML(ctx, dom.NewGetOuterHTMLArgs().SetNodeID(dom.NodeID(id)))
		if err != nil {
			return err
		}
		html = reply.OuterHTML
		return nil
	})
	return html, err
}

func (s *Session) BoxModel(ctx context.Context, id model.NodeID) (float64, float64, error) {
	var w, h float64
	err := s.call(ctx, "DOM.getBoxModel", func(ctx context.Context) error {
		reply, err := s.client.DOM.GetBoxModel(ctx, dom.NewGetBoxModelArgs().SetNodeID(dom.NodeID(id)))
		if err != nil {
			return err
		}
		m := reply.Model
		w, h = float64(m.Width), float64(m.Height)
		return nil
	})
	return w, h, err
}

func (s *Session) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.call(ctx, "Runtime.evaluate", func(ctx context.Context) error {
		args := runtime.NewEvaluateArgs(expression).SetReturnByValue(true).SetAwaitPromise(true)
		reply, err := s.client.Runtime.Evaluate(ctx, args)
		if err != nil {
			return err
		}
		if reply.ExceptionDetails != nil {
			return fmt.Errorf("exception: %s", reply.ExceptionDetails.Text)
		}
		out = reply.Result.Value
		return nil
	})
	return out, err
}
