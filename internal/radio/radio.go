package radio

import (
	"context"
	"time"
)

// Result 平台回执结果码
type Result int

const (
	ResultOK Result = iota
	ResultGenericFailure
	ResultNoService
	ResultNullPDU
	ResultRadioOff
	ResultUnknown
)

// Kind 回执类别：发送完成 / 送达
type Kind int

const (
	KindSent Kind = iota
	KindDelivered
)

func (k Kind) String() string {
	if k == KindDelivered {
		return "delivered"
	}
	return "sent"
}

// Completion 单个段的异步回执信号。
// At 是观察到平台信号的时刻，事件上报沿用它而不是上报时刻，
// 重试与排队延迟不能破坏时钟因果。
type Completion struct {
	Kind      Kind
	SegmentID string
	Result    Result
	At        time.Time
}

// OK 回执是否成功
func (c Completion) OK() bool { return c.Result == ResultOK }

// Transmitter 无线发送边界。
// MessageParts 暴露平台的长度感知拆分；Send* 在平台边界抛错时返回 error，
// 由编排器转为终态 FAILED，本系统不自行重发。
type Transmitter interface {
	MessageParts(ctx context.Context, content string) ([]string, error)
	SendTextMessage(ctx context.Context, subscriptionID int, contact, body, segmentID string) error
	SendMultipartTextMessage(ctx context.Context, subscriptionID int, contact string, bodies, segmentIDs []string) error
}
