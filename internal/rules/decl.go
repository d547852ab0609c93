package rules

import "strings"

// Decl 一条 CSS 声明
type Decl struct {
	Name  string
	Value string
}

func IsCustomProperty(name string) bool { return strings.HasPrefix(name, "--") }

// ParseDeclarations 按顶层分号切分声明文本，括号与引号内的分号和冒号不参与切分。
// 普通属性名转为小写，自定义属性名保持原样
func ParseDeclarations(text string) []Decl {
	var out []Decl
	for _, part := range splitTop(text, ';') {
		i := indexTop(part, ':')
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(part[:i])
		value := strings.TrimSpace(part[i+1:])
		if name == "" {
			continue
		}
		if !IsCustomProperty(name) {
			name = strings.ToLower(name)
			if value == "" {
				continue
			}
		}
		out = append(out, Decl{Name: name, Value: value})
	}
	return out
}

// FormatDeclarations 输出 "name: value; name: value;"
func FormatDeclarations(decls []Decl) string {
	var b strings.Builder
	for i, d := range decls {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.Name)
		b.WriteString(": ")
		b.WriteString(d.Value)
		b.WriteByte(';')
	}
	return b.String()
}

func splitTop(s string, sep byte) []string {
	var out []string
	start := 0
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func indexTop(s string, sep byte) int {
	parts := splitTop(s, sep)
	if len(parts) < 2 {
		return -1
	}
	return len(parts[0])
}
