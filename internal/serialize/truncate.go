package serialize

import "regexp"

// TruncatedMarker 替换超长内嵌图片数据后的标记
const TruncatedMarker = "...[BASE64_IMAGE_DATA_TRUNCATED]..."

var dataImageRe = regexp.MustCompile(`data:image/[^'"()\s\[\]]*`)

// Truncator 截断超过阈值的 data:image 载荷，只保留前 Keep 个字符
type Truncator struct {
	Threshold int
	Keep      int
}

// NewTruncator 保证截断结果本身不会再次超过阈值
func NewTruncator(threshold, keep int) Truncator {
	if threshold <= 0 {
		threshold = 500
	}
	if keep <= 0 {
		keep = 30
	}
	if keep >= threshold {
		keep = threshold - 1
	}
	return Truncator{Threshold: threshold, Keep: keep}
}

// Apply 对已截断的值再次调用不产生变化
func (t Truncator) Apply(s string) string {
	if t.Threshold <= 0 || len(s) <= t.Threshold {
		return s
	}
	return dataImageRe.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) <= t.Threshold {
			return m
		}
		return m[:t.Keep] + TruncatedMarker
	})
}
