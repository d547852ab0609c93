// Package style 负责单节点样式的获取与净化。
//
// 净化按固定顺序执行：黑名单、默认值哨兵、与父节点已净化值相同的继承去重，
// 捕获根额外剔除摆放属性。
package style

import (
	"strings"

	"cdpsnap/internal/rules"
	"cdpsnap/pkg/model"
)

// InteractiveProperties 参与 hover 差异比较的属性
var InteractiveProperties = []string{
	"color", "background-color", "border-color", "opacity",
	"transform", "box-shadow", "fill", "stroke",
}

var alwaysKeep = map[string]bool{
	"display": true, "position": true,
	"top": true, "right": true, "bottom": true, "left": true,
	"width": true, "height": true,
	"min-width": true, "min-height": true, "max-width": true, "max-height": true,
	"z-index": true, "opacity": true, "transform": true,
	"margin-top": true, "margin-right": true, "margin-bottom": true, "margin-left": true,
	"padding-top": true, "padding-right": true, "padding-bottom": true, "padding-left": true,
	"row-gap": true, "column-gap": true,
}

// inert 布局关键属性取初始值时不携带任何布局信息，仍按哨兵丢弃。
// display、position、width、height 不在此列，始终保留
var inert = map[string][]string{
	"top": {"auto"}, "right": {"auto"}, "bottom": {"auto"}, "left": {"auto"},
	"min-width": {"auto", "0px"}, "min-height": {"auto", "0px"},
	"max-width": {"none"}, "max-height": {"none"},
	"z-index": {"auto"}, "transform": {"none"},
	"margin-top": {"0px"}, "margin-right": {"0px"}, "margin-bottom": {"0px"}, "margin-left": {"0px"},
	"padding-top": {"0px"}, "padding-right": {"0px"}, "padding-bottom": {"0px"}, "padding-left": {"0px"},
	"row-gap": {"normal"}, "column-gap": {"normal"},
}

var sentinels = map[string]bool{
	"auto": true, "none": true, "normal": true, "0px": true,
	"rgba(0, 0, 0, 0)": true, "transparent": true, "initial": true,
}

var blocked = map[string]bool{
	"text-rendering": true, "zoom": true, "mix-blend-mode": true,
	"speak": true, "orphans": true, "widows": true,
	"math-depth": true, "math-shift": true, "math-style": true,
	"color-interpolation": true, "color-rendering": true, "buffered-rendering": true,
}

var webkitAllowed = []string{"line-clamp", "box-orient", "text-fill-color"}

// AlwaysKeep 布局关键属性，不受继承去重影响，哨兵只剔除其初始值
func AlwaysKeep(name string) bool { return alwaysKeep[name] }

// Blocked 厂商前缀、逻辑属性重复项与渲染器内部属性
func Blocked(name string) bool {
	if blocked[name] {
		return true
	}
	switch {
	case strings.HasPrefix(name, "-webkit-"):
		for _, ok := range webkitAllowed {
			if strings.Contains(name, ok) {
				return false
			}
		}
		return true
	case strings.HasPrefix(name, "-moz-"), strings.HasPrefix(name, "-ms-"), strings.HasPrefix(name, "-internal-"):
		return true
	}
	return isLogical(name)
}

func isLogical(name string) bool {
	if name == "block-size" || name == "inline-size" {
		return true
	}
	if strings.Contains(name, "-block") || strings.Contains(name, "-inline") {
		return true
	}
	for _, corner := range []string{"-start-start-", "-start-end-", "-end-start-", "-end-end-"} {
		if strings.Contains(name, corner) {
			return true
		}
	}
	return false
}

// Sentinel 值是否为无意义的默认值
func Sentinel(value string) bool { return sentinels[strings.TrimSpace(value)] }

// Inert 布局关键属性是否取其初始值
func Inert(name, value string) bool {
	value = strings.TrimSpace(value)
	for _, v := range inert[name] {
		if v == value {
			return true
		}
	}
	return false
}

// Purify 将计算样式净化为最小差异表。parent 为父节点已净化的样式，根节点传 nil
func Purify(props []model.StyleProperty, parent *Map, root bool) *Map {
	out := NewMap()
	for _, p := range props {
		name := p.Name
		if rules.IsCustomProperty(name) || Blocked(name) {
			continue
		}
		keep := AlwaysKeep(name)
		if !keep && Sentinel(p.Value) || keep && Inert(name, p.Value) {
			continue
		}
		if !keep {
			if pv, ok := parent.Get(name); ok && pv == p.Value {
				continue
			}
		}
		if root && rules.IsRootPlacement(name) {
			continue
		}
		out.Set(name, p.Value)
	}
	return out
}

// Interactive 提取交互属性的原始计算值
func Interactive(props []model.StyleProperty) map[string]string {
	out := make(map[string]string, len(InteractiveProperties))
	for _, p := range props {
		for _, name := range InteractiveProperties {
			if p.Name == name {
				out[name] = p.Value
				break
			}
		}
	}
	return out
}
