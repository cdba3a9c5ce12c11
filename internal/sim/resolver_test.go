package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/taoyao-code/sms-agent/internal/settings"
)

func dualSimSetup(ctx context.Context, t *testing.T) (settings.Repository, *StaticSubscriptions) {
	t.Helper()
	repo := settings.NewMemory()
	_ = repo.SetPhoneNumber(ctx, settings.SIM1, "+8613800000001")
	_ = repo.SetPhoneNumber(ctx, settings.SIM2, "+8613800000002")
	lister := &StaticSubscriptions{
		Subs: []Subscription{
			{ID: 11, Slot: 0, Number: "+8613800000001"},
			{ID: 22, Slot: 1, Number: "+8613800000002"},
		},
		DefaultID: 11,
	}
	return repo, lister
}

func TestParseSelector(t *testing.T) {
	if ParseSelector("SIM1") != SIM1 || ParseSelector("SIM2") != SIM2 {
		t.Fatal("显式槽位解析错误")
	}
	if ParseSelector("DEFAULT") != Default || ParseSelector("") != Default || ParseSelector("garbage") != Default {
		t.Fatal("未知值应落到 DEFAULT")
	}
}

func TestResolveBySlot(t *testing.T) {
	ctx := context.Background()
	repo, lister := dualSimSetup(ctx, t)
	r := NewResolver(lister, repo, nil)

	if id := r.Resolve(ctx, SIM1); id != 11 {
		t.Fatalf("SIM1 -> %d, 期望11", id)
	}
	if id := r.Resolve(ctx, SIM2); id != 22 {
		t.Fatalf("SIM2 -> %d, 期望22", id)
	}
	if id := r.Resolve(ctx, Default); id != 11 {
		t.Fatalf("DEFAULT -> %d, 期望平台默认11", id)
	}
}

func TestResolveFallsBackOnMissingSub(t *testing.T) {
	ctx := context.Background()
	repo := settings.NewMemory()
	lister := &StaticSubscriptions{
		Subs:      []Subscription{{ID: 11, Slot: 0, Number: "+8613800000001"}},
		DefaultID: 11,
	}
	r := NewResolver(lister, repo, nil)

	if id := r.Resolve(ctx, SIM2); id != 11 {
		t.Fatalf("订阅不足时 SIM2 应回退默认路径, got %d", id)
	}
}

func TestResolveFallsBackOnEnumerateError(t *testing.T) {
	ctx := context.Background()
	repo := settings.NewMemory()
	lister := &StaticSubscriptions{Err: errors.New("no permission"), DefaultID: 7}
	r := NewResolver(lister, repo, nil)

	if id := r.Resolve(ctx, SIM1); id != 7 {
		t.Fatalf("无枚举权限应回退默认路径, got %d", id)
	}
}

func TestIsDualSIM(t *testing.T) {
	ctx := context.Background()
	repo, lister := dualSimSetup(ctx, t)
	r := NewResolver(lister, repo, nil)

	if !r.IsDualSIM(ctx) {
		t.Fatal("两个订阅 + 两个号码应判定双卡")
	}

	// 只剩一个订阅：双卡不成立
	lister.Subs = lister.Subs[:1]
	if r.IsDualSIM(ctx) {
		t.Fatal("单订阅不应判定双卡")
	}
}

func TestIsActive(t *testing.T) {
	ctx := context.Background()
	repo, lister := dualSimSetup(ctx, t)
	r := NewResolver(lister, repo, nil)

	if !r.IsActive(ctx, SIM1) || !r.IsActive(ctx, SIM2) {
		t.Fatal("双卡缺省都应激活")
	}

	_ = repo.SetActiveStatus(ctx, string(SIM2), false)
	if r.IsActive(ctx, SIM2) {
		t.Fatal("关闭后 SIM2 不应激活")
	}
	if !r.IsActive(ctx, Default) {
		t.Fatal("仍有激活 SIM 时 DEFAULT 应可用")
	}
}
