package serialize

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpsnap/internal/rules"
	"cdpsnap/internal/style"
	"cdpsnap/internal/tree"
	"cdpsnap/pkg/model"
)

func base(t *testing.T) *url.URL {
	u, err := url.Parse("https://example.com/app/")
	require.NoError(t, err)
	return u
}

func styleMap(kv ...string) *style.Map {
	m := style.NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

func TestAbsolutize(t *testing.T) {
	b := base(t)
	cases := map[string]string{
		"/img/x.png":            "https://example.com/img/x.png",
		"img/x.png":             "https://example.com/app/img/x.png",
		"../x.png":              "https://example.com/x.png",
		"//cdn.example.com/a":   "https://cdn.example.com/a",
		"http://other.test/a":   "http://other.test/a",
		"data:image/png;base64": "data:image/png;base64",
		"blob:https://e/1":      "blob:https://e/1",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Absolutize(in, b), in)
	}
}

func TestAbsolutizeStyle(t *testing.T) {
	b := base(t)
	assert.Equal(t, "url('https://example.com/img/x.png')", AbsolutizeStyle("url(/img/x.png)", b))
	assert.Equal(t, `url('https://example.com/app/a.png') no-repeat, url('https://example.com/b.png')`,
		AbsolutizeStyle(`url("a.png") no-repeat, url( '/b.png' )`, b))
	assert.Equal(t, `url("data:image/gif;base64,R0lG")`, AbsolutizeStyle(`url("data:image/gif;base64,R0lG")`, b))
	assert.Equal(t, "none", AbsolutizeStyle("none", b))
}

func TestAbsolutizeSrcset(t *testing.T) {
	b := base(t)
	assert.Equal(t, "https://example.com/app/a.png 1x, https://example.com/b.png 2x", AbsolutizeSrcset("a.png 1x,  /b.png 2x", b))
	assert.Equal(t, "data:image/png;base64,AA 1x", AbsolutizeSrcset("data:image/png;base64,AA 1x", b))
}

func TestTruncateIdempotent(t *testing.T) {
	tr := NewTruncator(500, 30)
	payload := "data:image/png;base64," + strings.Repeat("A", 2000)
	value := "url('" + payload + "') center"

	once := tr.Apply(value)
	assert.Equal(t, "url('"+payload[:30]+TruncatedMarker+"') center", once)
	assert.Equal(t, once, tr.Apply(once))

	short := "url('data:image/png;base64,AAAA')"
	assert.Equal(t, short, tr.Apply(short))
}

func TestRenderAttributeFamilies(t *testing.T) {
	payload := "data:image/png;base64," + strings.Repeat("B", 800)
	root := &tree.Element{
		Tag:   "div",
		Style: styleMap("background-image", "url(/img/x.png)", "color", "red"),
		Attrs: []model.Attr{
			{Name: "data-cdpsnap-id", Value: "m1"},
			{Name: "class", Value: "card"},
			{Name: "style", Value: "color:red"},
			{Name: "onclick", Value: "go()"},
			{Name: "title", Value: `say "hi"`},
		},
		HoverDiff: styleMap("background-color", "#2563eb"),
		Rules: []rules.Rule{
			{Selector: rules.RootSelector, Body: "--accent: red;", Provenance: rules.RootVariables},
			{Selector: ".card", Body: "color: var(--accent);", Provenance: rules.OwnRule},
			{Selector: "body", Body: "font-size: 14px; --fg: #111;", Provenance: rules.Inherited},
		},
		Children: []tree.Node{
			&tree.Element{Tag: "div", Pseudo: "before", Style: styleMap("content", `"*"`)},
			&tree.Element{Tag: "img", Style: style.NewMap(), Attrs: []model.Attr{{Name: "src", Value: payload}}},
			&tree.Element{Tag: "a", Style: style.NewMap(), Attrs: []model.Attr{{Name: "href", Value: "buy"}}, Children: []tree.Node{
				&tree.Text{Content: "Buy <now>"},
			}},
			&tree.Vector{Markup: `<svg viewBox="0 0 1 1"><image href="pic.png"/></svg>`, HoverDiff: styleMap("fill", "#fff")},
		},
	}

	out := New(Options{BaseURL: "https://example.com/app/", MarkerAttr: "data-cdpsnap-id", Truncator: NewTruncator(500, 30)}).Render(root)

	want := `<div style="background-image:url('https://example.com/img/x.png');color:red"` +
		` data-hover-diff="background-color:#2563eb"` +
		` data-rules=".card { color: var(--accent); } body (inherited) { font-size: 14px; }"` +
		` data-vars="--accent: red; --fg: #111;"` +
		` title="say &quot;hi&quot;">` +
		`<div style="content:&quot;*&quot;" data-pseudo="before"></div>` +
		`<img src="` + payload[:30] + TruncatedMarker + `">` +
		`<a href="https://example.com/app/buy">Buy &lt;now&gt;</a>` +
		`<svg data-hover-diff="fill:#fff" viewBox="0 0 1 1"><image href="https://example.com/app/pic.png"/></svg>` +
		`</div>`
	assert.Equal(t, want, out)
	assert.Contains(t, out, "url('https://example.com/img/x.png')")
}

func TestRenderKeepsOpenButDropsHandlers(t *testing.T) {
	root := &tree.Element{Tag: "details", Style: style.NewMap(), Attrs: []model.Attr{
		{Name: "open", Value: ""},
		{Name: "onToggle", Value: "track()"},
		{Name: "on", Value: "x"},
		{Name: "on-state", Value: "idle"},
	}}
	assert.Equal(t, `<details open="" on="x" on-state="idle"></details>`, New(Options{}).Render(root))
}

func TestRenderWithoutBaseURL(t *testing.T) {
	root := &tree.Element{Tag: "a", Style: style.NewMap(), Attrs: []model.Attr{{Name: "href", Value: "/x"}}}
	assert.Equal(t, `<a href="/x"></a>`, New(Options{BaseURL: "about:blank"}).Render(root))
}

func TestInspect(t *testing.T) {
	markup := `<div style="color:red" data-rules="a { b: c; }" data-vars="--x: 1;"><img src="data:image/png;base64,AAAA">` +
		`<svg><path/></svg></div>`
	b := Inspect(markup)
	assert.Equal(t, len(markup), b.TotalBytes)
	assert.Equal(t, len(markup)/4, b.ApproxTokens)
	assert.Equal(t, 1, b.Base64Images)
	assert.Equal(t, len("data:image/png;base64,AAAA"), b.Base64Bytes)
	assert.Equal(t, 1, b.SVGCount)
	assert.Equal(t, len(`<svg><path/></svg>`), b.SVGBytes)
	assert.Equal(t, len(` style="color:red"`), b.StyleBytes)
	assert.Equal(t, len(` data-rules="a { b: c; }"`), b.RuleBytes)
	assert.Equal(t, len(` data-vars="--x: 1;"`), b.VariableBytes)
}
