package cdp

import (
	"testing"

	"github.com/mafredri/cdp/protocol/css"
	"github.com/mafredri/cdp/protocol/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpsnap/pkg/model"
)

func TestToNeutralNodeKeepsOrder(t *testing.T) {
	root := &dom.Node{
		NodeID:     1,
		NodeType:   1,
		NodeName:   "DIV",
		Attributes: []string{"id", "card", "data-cdpsnap-id", "m1"},
		PseudoElements: []dom.Node{
			{NodeID: 5, NodeType: 1, NodeName: "::before"},
		},
		Children: []dom.Node{
			{NodeID: 2, NodeType: 3, NodeName: "#text", NodeValue: " hi "},
			{NodeID: 3, NodeType: 1, NodeName: "SPAN", Children: []dom.Node{
				{NodeID: 4, NodeType: 3, NodeName: "#text", NodeValue: "x"},
			}},
		},
	}

	n := ToNeutralNode(root)
	require.NotNil(t, n)
	assert.Equal(t, model.NodeID(1), n.ID)
	v, ok := n.Attr("data-cdpsnap-id")
	assert.True(t, ok)
	assert.Equal(t, "m1", v)

	require.Len(t, n.Children, 2)
	assert.Equal(t, " hi ", n.Children[0].Value)
	assert.Equal(t, model.NodeID(4), n.Children[1].Children[0].ID)
	require.Len(t, n.PseudoElements, 1)
	assert.True(t, n.PseudoElements[0].IsPseudo())
}

func TestToAttrsOddLength(t *testing.T) {
	assert.Equal(t, []model.Attr{{Name: "a", Value: "1"}}, ToAttrs([]string{"a", "1", "dangling"}))
	assert.Nil(t, ToAttrs(nil))
}

func TestToMatchedStyles(t *testing.T) {
	own := ".btn { color: red; }"
	body := "color: red;"
	inh := "--brand: #2563eb; font-size: 14px;"
	reply := &css.GetMatchedStylesForNodeReply{
		InlineStyle: &css.Style{CSSText: &own},
		MatchedCSSRules: []css.RuleMatch{
			{Rule: css.Rule{SelectorList: css.SelectorList{Text: ".btn"}, Origin: "regular", Style: css.Style{CSSText: &body}}},
			{Rule: css.Rule{SelectorList: css.SelectorList{Text: "button"}, Origin: "user-agent"}},
		},
		Inherited: []css.InheritedStyleEntry{
			{MatchedCSSRules: []css.RuleMatch{
				{Rule: css.Rule{SelectorList: css.SelectorList{Text: ":root"}, Origin: "regular", Style: css.Style{CSSText: &inh}}},
			}},
		},
	}

	ms := ToMatchedStyles(reply)
	assert.Equal(t, own, ms.InlineCSS)
	require.Len(t, ms.Rules, 2)
	assert.Equal(t, model.CSSRule{Selector: ".btn", CSSText: body, Origin: "regular"}, ms.Rules[0])
	assert.Equal(t, model.OriginUserAgent, ms.Rules[1].Origin)
	assert.Empty(t, ms.Rules[1].CSSText)
	require.Len(t, ms.Inherited, 1)
	assert.Equal(t, inh, ms.Inherited[0].Rules[0].CSSText)
}
