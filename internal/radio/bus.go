package radio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// 期望登记的保活时长：远超运营商回执的常规延迟即可
const expectationTTL = 48 * time.Hour

// Bus 回执总线。
// 平台把 sent/delivered 信号按段标识投递进来，完成监听器作为唯一消费者。
// 编排器在发射前按任务的派生标识登记期望；同一消息重试会覆盖登记，
// 上一轮尝试遗留的陈旧回执因此无法被错误归因。
type Bus struct {
	mu       sync.Mutex
	byParent map[string][]string
	expected map[string]time.Time
	ch       chan Completion
	log      *zap.Logger
}

// NewBus 创建回执总线
func NewBus(buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		byParent: make(map[string][]string),
		expected: make(map[string]time.Time),
		ch:       make(chan Completion, buffer),
		log:      log,
	}
}

// Expect 登记一次发送尝试的全部段标识，覆盖同一父消息的旧登记
func (b *Bus) Expect(parentID string, segmentIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, old := range b.byParent[parentID] {
		delete(b.expected, old)
	}

	deadline := time.Now().Add(expectationTTL)
	ids := make([]string, len(segmentIDs))
	copy(ids, segmentIDs)
	b.byParent[parentID] = ids
	for _, id := range ids {
		b.expected[id] = deadline
	}

	b.sweepLocked()
}

// Publish 投递一个回执信号。
// 未登记的段标识被丢弃：要么来自已被覆盖的旧尝试，要么就不是我们的消息。
func (b *Bus) Publish(c Completion) {
	b.mu.Lock()
	deadline, ok := b.expected[c.SegmentID]
	if ok && time.Now().After(deadline) {
		delete(b.expected, c.SegmentID)
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		b.log.Debug("dropping unexpected completion",
			zap.String("segment_id", c.SegmentID),
			zap.String("kind", c.Kind.String()))
		return
	}

	select {
	case b.ch <- c:
	default:
		// 消费侧停滞时宁可丢信号也不阻塞平台回调
		b.log.Warn("completion bus full, dropping signal",
			zap.String("segment_id", c.SegmentID),
			zap.String("kind", c.Kind.String()))
	}
}

// Completions 回执消费通道
func (b *Bus) Completions() <-chan Completion { return b.ch }

func (b *Bus) sweepLocked() {
	now := time.Now()
	for id, deadline := range b.expected {
		if now.After(deadline) {
			delete(b.expected, id)
		}
	}
	for parent, ids := range b.byParent {
		alive := false
		for _, id := range ids {
			if _, ok := b.expected[id]; ok {
				alive = true
				break
			}
		}
		if !alive {
			delete(b.byParent, parent)
		}
	}
}
