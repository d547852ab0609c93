package style

import "strings"

// Map 有序的属性表，保持首次写入顺序
type Map struct {
	keys []string
	vals map[string]string
}

func NewMap() *Map { return &Map{vals: make(map[string]string)} }

func (m *Map) Get(k string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.vals[k]
	return v, ok
}

func (m *Map) Set(k, v string) {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

func (m *Map) Delete(k string) {
	if _, ok := m.vals[k]; !ok {
		return
	}
	delete(m.vals, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys 按写入顺序返回键
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Each 按顺序遍历
func (m *Map) Each(fn func(k, v string)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.vals[k])
	}
}

// String 以 "k:v;k:v" 输出
func (m *Map) String() string {
	var b strings.Builder
	m.Each(func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
	})
	return b.String()
}
