package timeutil

import (
	"strings"
	"time"
)

// 后台要求的毫秒段 + 补零的固定宽度时间格式。
// 例：2024-01-02T03:04:05.123000000Z
const wireLayout = "2006-01-02T15:04:05.000"

// Format 按后台线格式序列化时间戳。
// 毫秒之后固定补 6 个零，零时区偏移 +00:00 以字面 Z 输出，
// 后台解析依赖这一精确形状，不能用 RFC3339Nano 代替。
func Format(t time.Time) string {
	offset := t.Format("-07:00")
	if strings.HasPrefix(offset, "+00:00") {
		offset = "Z"
	}
	return t.Format(wireLayout) + "000000" + offset
}

// Now 返回当前 UTC 时间的线格式序列化结果
func Now() string {
	return Format(time.Now().UTC())
}
