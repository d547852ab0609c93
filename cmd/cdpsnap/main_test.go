package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdpsnap/pkg/model"
)

func TestResultJSON(t *testing.T) {
	doc, err := resultJSON(&model.CaptureResult{
		ID:     "c1",
		Markup: `<div style="color:red">"hi"</div>`,
		Layout: model.AutoLayout(),
		Nodes:  2,
		Bloat:  model.Bloat{TotalBytes: 33, ApproxTokens: 8},
	})
	require.NoError(t, err)

	assert.Equal(t, "c1", gjson.GetBytes(doc, "id").String())
	assert.Equal(t, `<div style="color:red">"hi"</div>`, gjson.GetBytes(doc, "markup").String())
	assert.Equal(t, "auto", gjson.GetBytes(doc, "layout.width").String())
	assert.Equal(t, int64(2), gjson.GetBytes(doc, "nodes").Int())
	assert.Equal(t, int64(33), gjson.GetBytes(doc, "bloat.totalBytes").Int())
}

func TestCaptureRequiresSelectorOrMarker(t *testing.T) {
	selector, marker = "", ""
	err := captureCmd.RunE(captureCmd, nil)
	assert.Error(t, err)
}
