package sim

import "context"

// StaticSubscriptions 固定订阅表，回环部署与测试用
type StaticSubscriptions struct {
	Subs      []Subscription
	DefaultID int
	Err       error
}

// ActiveSubscriptions 返回固定订阅列表
func (s *StaticSubscriptions) ActiveSubscriptions(context.Context) ([]Subscription, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Subs, nil
}

// DefaultSubscriptionID 返回平台默认发送路径
func (s *StaticSubscriptions) DefaultSubscriptionID(context.Context) int { return s.DefaultID }

var _ SubscriptionLister = (*StaticSubscriptions)(nil)
