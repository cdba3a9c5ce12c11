package radio

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Loopback 无真实射频的发送驱动：按固定长度拆分，
// 发射后立刻在总线上产出成功的 sent/delivered 回执。
// 用于无 SIM 的部署验证与本地联调。
type Loopback struct {
	bus   *Bus
	limit int
	log   *zap.Logger
}

// NewLoopback 创建回环驱动
func NewLoopback(bus *Bus, singlePartLimit int, log *zap.Logger) *Loopback {
	if singlePartLimit <= 0 {
		singlePartLimit = 160
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loopback{bus: bus, limit: singlePartLimit, log: log}
}

// MessageParts 按 rune 计数的朴素拆分。
// 真实平台的拆分是编码感知的（GSM-7/UCS-2），这里只需长度上界语义。
func (l *Loopback) MessageParts(_ context.Context, content string) ([]string, error) {
	runes := []rune(content)
	if len(runes) <= l.limit {
		return []string{content}, nil
	}

	var parts []string
	for len(runes) > 0 {
		n := l.limit
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts, nil
}

// SendTextMessage 单段发射
func (l *Loopback) SendTextMessage(_ context.Context, subscriptionID int, contact, body, segmentID string) error {
	l.log.Info("loopback transmit",
		zap.Int("subscription_id", subscriptionID),
		zap.String("contact", contact),
		zap.String("segment_id", segmentID),
		zap.Int("body_len", len(body)))
	l.complete(segmentID)
	return nil
}

// SendMultipartTextMessage 多段发射
func (l *Loopback) SendMultipartTextMessage(_ context.Context, subscriptionID int, contact string, bodies, segmentIDs []string) error {
	l.log.Info("loopback multipart transmit",
		zap.Int("subscription_id", subscriptionID),
		zap.String("contact", contact),
		zap.Int("parts", len(bodies)))
	for _, id := range segmentIDs {
		l.complete(id)
	}
	return nil
}

func (l *Loopback) complete(segmentID string) {
	now := time.Now().UTC()
	l.bus.Publish(Completion{Kind: KindSent, SegmentID: segmentID, Result: ResultOK, At: now})
	l.bus.Publish(Completion{Kind: KindDelivered, SegmentID: segmentID, Result: ResultOK, At: now})
}

var _ Transmitter = (*Loopback)(nil)
