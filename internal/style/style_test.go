package style

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpsnap/internal/inspect/inspecttest"
	"cdpsnap/internal/rules"
	"cdpsnap/pkg/model"
)

func props(kv ...string) []model.StyleProperty {
	var out []model.StyleProperty
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.StyleProperty{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestPurifyBlocklist(t *testing.T) {
	m := Purify(props(
		"-webkit-tap-highlight-color", "red",
		"-webkit-line-clamp", "2",
		"-moz-appearance", "button",
		"inline-size", "100px",
		"margin-inline-start", "4px",
		"border-start-start-radius", "2px",
		"zoom", "1.5",
		"--brand", "#f00",
		"color", "red",
	), nil, false)
	assert.Equal(t, []string{"-webkit-line-clamp", "color"}, m.Keys())
}

func TestPurifySentinels(t *testing.T) {
	m := Purify(props(
		"float", "none",
		"background-color", "rgba(0, 0, 0, 0)",
		"letter-spacing", "normal",
		"border-top-width", "0px",
		"transform", "none",
		"width", "auto",
		"color", "rgb(1, 2, 3)",
	), nil, false)
	assert.Equal(t, "width:auto;color:rgb(1, 2, 3)", m.String())
}

func TestPurifyDropsInitialLayoutValues(t *testing.T) {
	m := Purify(props(
		"display", "block",
		"position", "static",
		"width", "auto",
		"height", "auto",
		"top", "auto", "left", "0px",
		"margin-top", "0px", "margin-bottom", "8px",
		"padding-left", "0px",
		"min-width", "auto", "max-height", "none",
		"z-index", "auto", "z-index", "2",
		"row-gap", "normal", "column-gap", "4px",
		"transform", "none",
	), nil, false)
	assert.Equal(t, "display:block;position:static;width:auto;height:auto;left:0px;margin-bottom:8px;z-index:2;column-gap:4px", m.String())
}

func TestPurifyInheritanceDedup(t *testing.T) {
	parent := Purify(props("color", "#111", "font-size", "14px", "display", "block"), nil, false)
	child := Purify(props("color", "#111", "font-size", "16px", "display", "block"), parent, false)

	_, ok := child.Get("color")
	assert.False(t, ok)
	v, _ := child.Get("font-size")
	assert.Equal(t, "16px", v)
	v, _ = child.Get("display")
	assert.Equal(t, "block", v)
}

func TestPurifyInheritanceProperty(t *testing.T) {
	parentProps := props("color", "#111", "cursor", "pointer", "opacity", "1", "line-height", "20px")
	childProps := props("color", "#111", "cursor", "default", "opacity", "1", "line-height", "20px")
	parent := Purify(parentProps, nil, false)
	child := Purify(childProps, parent, false)

	for _, p := range childProps {
		pv, ok := parent.Get(p.Name)
		if AlwaysKeep(p.Name) || !ok || pv != p.Value {
			continue
		}
		_, present := child.Get(p.Name)
		assert.False(t, present, p.Name)
	}
}

func TestPurifyRootIsolation(t *testing.T) {
	m := Purify(props(
		"margin-top", "12px", "margin-left", "3px", "top", "4px", "left", "0px",
		"right", "1px", "bottom", "2px", "align-self", "center", "justify-self", "end",
		"position", "absolute", "padding-top", "5px",
	), nil, true)
	for _, k := range []string{"margin-top", "margin-left", "top", "left", "right", "bottom", "align-self", "justify-self"} {
		_, ok := m.Get(k)
		assert.False(t, ok, k)
	}
	assert.Equal(t, "position:absolute;padding-top:5px", m.String())
}

func TestMapOrderAndDelete(t *testing.T) {
	m := NewMap()
	m.Set("b", "1")
	m.Set("a", "2")
	m.Set("b", "3")
	m.Delete("missing")
	assert.Equal(t, "b:3;a:2", m.String())
	m.Delete("b")
	assert.Equal(t, []string{"a"}, m.Keys())

	var nilMap *Map
	assert.Zero(t, nilMap.Len())
}

func newPage() *inspecttest.Page {
	p := inspecttest.NewPage("https://example.com/")
	inspecttest.Append(p.Root(), p.Element(2, "div", "class", "card"))
	p.SetStyle(2, "color", "red", "--gap", "4px", "--unused", "1px", "margin-top", "9px")
	p.SetMatched(2, &model.MatchedStyles{Rules: []model.CSSRule{
		{Selector: ".card", CSSText: "color: red; margin-top: 9px;", Origin: "regular"},
	}})
	return p
}

func TestResolveRootAddsRootVariables(t *testing.T) {
	r := NewResolver(newPage(), nil)
	res, err := r.Resolve(context.Background(), Request{ID: 2, Root: true, WithRules: true})
	require.NoError(t, err)

	assert.Equal(t, "color:red", res.Style.String())
	require.Len(t, res.Rules, 2)
	assert.Equal(t, rules.RootVariables, res.Rules[0].Provenance)
	assert.Equal(t, "--gap: 4px; --unused: 1px;", res.Rules[0].Body)
	assert.Equal(t, rules.Rule{Selector: ".card", Body: "color: red;", Provenance: rules.OwnRule}, res.Rules[1])
	assert.Equal(t, map[string]string{"color": "red"}, res.Interactive)
}

func TestResolvePartialFailure(t *testing.T) {
	p := newPage()
	p.FailMethod("MatchedStyles", 2)
	r := NewResolver(p, nil)

	res, err := r.Resolve(context.Background(), Request{ID: 2, WithRules: true})
	require.NoError(t, err)
	assert.Empty(t, res.Rules)
	assert.Equal(t, "color:red;margin-top:9px", res.Style.String())

	p.FailMethod("ComputedStyle", 2)
	_, err = r.Resolve(context.Background(), Request{ID: 2, WithRules: true})
	assert.ErrorIs(t, err, model.ErrCommandFailed)
}

func TestResolveStylesOnly(t *testing.T) {
	p := newPage()
	r := NewResolver(p, nil)
	_, err := r.Resolve(context.Background(), Request{ID: 2})
	require.NoError(t, err)
	assert.NotContains(t, p.CallLog(), "MatchedStyles")

	p.FailMethod("ComputedStyle", 2)
	_, err = r.Resolve(context.Background(), Request{ID: 2})
	assert.Error(t, err)
}
