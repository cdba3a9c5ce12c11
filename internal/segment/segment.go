package segment

import (
	"fmt"
	"strings"
)

// Segment 一条消息的单个发送单元。
// 多段消息的段标识为 "{parentId}.{index}"，最后一段保留裸 parentId，
// 这样发送/投递回执天然落在父消息上，单段消息永远不会出现带后缀的标识。
type Segment struct {
	ParentID string
	Index    int
	IsLast   bool
	Body     string
}

// ID 返回段的派生标识
func (s Segment) ID() string {
	if s.IsLast {
		return s.ParentID
	}
	return fmt.Sprintf("%s.%d", s.ParentID, s.Index)
}

// Divider 平台提供的长度感知拆分能力（编码相关的字节/字符记账在平台侧）
type Divider func(body string) []string

// Split 把消息体拆成有序段序列。
// 纯函数：同一输入总产出同一序列；结果永不为空。
// 拆分器 panic 或产出空序列时回退为包含完整消息体的单段，
// 保证发送尝试的存活性。
func Split(parentID, body string, divide Divider) (segs []Segment) {
	defer func() {
		if r := recover(); r != nil {
			segs = []Segment{{ParentID: parentID, Index: 0, IsLast: true, Body: body}}
		}
	}()

	var parts []string
	if divide != nil {
		parts = divide(body)
	}
	if len(parts) == 0 {
		parts = []string{body}
	}

	segs = make([]Segment, 0, len(parts))
	for i, p := range parts {
		segs = append(segs, Segment{
			ParentID: parentID,
			Index:    i,
			IsLast:   i == len(parts)-1,
			Body:     p,
		})
	}
	return segs
}

// IDs 返回序列中每段的派生标识
func IDs(segs []Segment) []string {
	ids := make([]string, 0, len(segs))
	for _, s := range segs {
		ids = append(ids, s.ID())
	}
	return ids
}

// Bodies 返回序列中每段的消息体
func Bodies(segs []Segment) []string {
	bodies := make([]string, 0, len(segs))
	for _, s := range segs {
		bodies = append(bodies, s.Body)
	}
	return bodies
}

// IsParentID 只有裸 parentId 允许产生事件：
// 空标识和带多段后缀（含 "."）的标识一律拒绝。
func IsParentID(id string) bool {
	return id != "" && !strings.Contains(id, ".")
}
