package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpsnap/internal/cdp"
	"cdpsnap/internal/config"
	"cdpsnap/internal/inspect/inspecttest"
	"cdpsnap/internal/storage"
	"cdpsnap/pkg/model"
)

type pageConn struct {
	*inspecttest.Page
	closes atomic.Int32
}

func (c *pageConn) URL() string  { return "https://example.com/shop/" }
func (c *pageConn) Alive() bool  { return c.closes.Load() == 0 }
func (c *pageConn) Close() error { c.closes.Add(1); return nil }

func cardPage() *inspecttest.Page {
	p := inspecttest.NewPage("https://example.com/shop/")
	root := p.Element(10, "div", "data-cdpsnap-id", "m1")
	inspecttest.Append(p.Root(), inspecttest.Append(p.Element(2, "body"), inspecttest.Append(root, p.Text(11, "hi"))))
	p.SetStyle(10, "color", "red", "background-image", "url(img/a.png)")
	p.SetHover(10, "color", "blue")
	p.SetBox(10, 10, 20)
	return p
}

func newService(t *testing.T, dial cdp.DialFunc) *Service {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Capture.SettleDelayMS = 0
	cfg.Sqlite.Dsn = filepath.Join(t.TempDir(), "history.sqlite3")
	s, err := New(Options{Config: cfg, Dial: dial})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCaptureRecordsHistoryAndDetaches(t *testing.T) {
	conn := &pageConn{Page: cardPage()}
	s := newService(t, func(ctx context.Context, target model.TargetID) (cdp.Conn, error) { return conn, nil })

	res, err := s.Capture(context.Background(), "tab-1", "m1")
	require.NoError(t, err)
	assert.Contains(t, res.Markup, "url('https://example.com/shop/img/a.png')")
	assert.Contains(t, res.Markup, `data-hover-diff="color:blue"`)
	assert.Equal(t, model.LayoutSize{Width: 10, Height: 20}, res.Layout)
	assert.Equal(t, int32(1), conn.closes.Load())
	assert.Zero(t, conn.ForcedNodes())

	hist, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, string(res.ID), hist[0].ID)
	assert.Equal(t, storage.StatusOK, hist[0].Status)
	assert.Equal(t, "https://example.com/shop/", hist[0].PageURL)
	assert.Equal(t, res.Nodes, hist[0].Nodes)

	var sawCompleted bool
	for len(s.Events()) > 0 {
		if evt := <-s.Events(); evt.Type == model.EventCaptureCompleted {
			sawCompleted = true
			assert.Equal(t, res.ID, evt.Capture)
		}
	}
	assert.True(t, sawCompleted)
}

func TestCaptureFailureStillDetaches(t *testing.T) {
	conn := &pageConn{Page: cardPage()}
	s := newService(t, func(ctx context.Context, target model.TargetID) (cdp.Conn, error) { return conn, nil })

	_, err := s.Capture(context.Background(), "tab-1", "gone")
	assert.ErrorIs(t, err, model.ErrTargetNotFound)
	assert.Equal(t, int32(1), conn.closes.Load())

	hist, err := s.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, storage.StatusFailed, hist[0].Status)
	assert.Equal(t, "locate", hist[0].Stage)

	// 会话已结束，可以再次捕获
	_, err = s.Capture(context.Background(), "tab-1", "m1")
	assert.NoError(t, err)
}

func TestCaptureAttachFailure(t *testing.T) {
	var dials atomic.Int32
	s := newService(t, func(ctx context.Context, target model.TargetID) (cdp.Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	})

	_, err := s.Capture(context.Background(), "tab-1", "m1")
	assert.ErrorIs(t, err, model.ErrAttachFailed)
	assert.Equal(t, int32(2), dials.Load())

	hist, err := s.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, storage.StatusFailed, hist[0].Status)
	assert.Contains(t, hist[0].Error, "connection refused")

	evt := <-s.Events()
	assert.Equal(t, model.EventCaptureFailed, evt.Type)
	assert.Equal(t, "attach", evt.Stage)
}

func TestPlaceMarkerNotFound(t *testing.T) {
	conn := &pageConn{Page: cardPage()}
	s := newService(t, func(ctx context.Context, target model.TargetID) (cdp.Conn, error) { return conn, nil })

	_, err := s.PlaceMarker(context.Background(), "tab-1", ".missing")
	assert.ErrorIs(t, err, model.ErrTargetNotFound)
	assert.Equal(t, int32(1), conn.closes.Load())
	assert.NoError(t, s.RemoveMarker(context.Background(), "tab-1", "m1"))
}

func TestMarkScriptQuotesArguments(t *testing.T) {
	script, err := markScript("data-cdpsnap-id", "abc", `a[href="x"]`)
	require.NoError(t, err)
	assert.Contains(t, script, `["a[href=\"x\"]","data-cdpsnap-id","abc"]`)
	assert.Contains(t, script, "setAttribute")
}
