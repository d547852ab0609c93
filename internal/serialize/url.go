package serialize

import (
	"net/url"
	"regexp"
	"strings"
)

// Absolutize 将相对地址补全为绝对地址，data:/blob:/http 开头的值原样返回
func Absolutize(ref string, base *url.URL) string {
	if ref == "" || base == nil {
		return ref
	}
	if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "blob:") || strings.HasPrefix(ref, "http") {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		scheme := base.Scheme
		if scheme == "" {
			scheme = "https"
		}
		return scheme + ":" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

var cssURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]*)['"]?\s*\)`)

// AbsolutizeStyle 改写样式值中的 url(...) 引用为 url('绝对地址')
func AbsolutizeStyle(value string, base *url.URL) string {
	if base == nil || !strings.Contains(value, "url(") {
		return value
	}
	return cssURLRe.ReplaceAllStringFunc(value, func(m string) string {
		ref := strings.TrimSpace(cssURLRe.FindStringSubmatch(m)[1])
		if strings.HasPrefix(ref, "data:") {
			return m
		}
		return "url('" + Absolutize(ref, base) + "')"
	})
}

// AbsolutizeSrcset 逐个候选补全地址，保留描述符；含 data: 的值不改写
func AbsolutizeSrcset(value string, base *url.URL) string {
	if base == nil || strings.Contains(value, "data:") {
		return value
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		fields[0] = Absolutize(fields[0], base)
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}
