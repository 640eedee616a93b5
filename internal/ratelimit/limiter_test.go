package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func newTestLimiter(perMinute int) (*Limiter, *time.Time) {
	base := time.Now()
	current := base
	l := NewLimiter(map[string]Policy{
		"beta": {
			Regular: BucketPolicy{PerMinute: perMinute, PerHour: 1000},
			Adult:   BucketPolicy{PerMinute: perMinute, PerHour: 1000},
		},
	})
	l.now = func() time.Time { return current }
	return l, &current
}

func TestAllow_SlidingWindow(t *testing.T) {
	l, current := newTestLimiter(2)

	// 窗口内前两次通过，第三次超限
	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("beta", "client-1", BucketRegular); !ok {
			t.Fatalf("第 %d 次请求不应被限流", i+1)
		}
	}

	ok, retryAfter := l.Allow("beta", "client-1", BucketRegular)
	if ok {
		t.Fatal("超过每分钟上限的请求应被拒绝")
	}
	if retryAfter != Window {
		t.Errorf("retryAfter = %v, want %v", retryAfter, Window)
	}

	// 窗口完全滑过后恢复
	*current = current.Add(Window + time.Second)
	if ok, _ := l.Allow("beta", "client-1", BucketRegular); !ok {
		t.Error("窗口滑过后的请求应重新通过")
	}
}

func TestAllow_BucketsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2)

	// 占满常规桶
	l.Allow("beta", "client-1", BucketRegular)
	l.Allow("beta", "client-1", BucketRegular)
	if ok, _ := l.Allow("beta", "client-1", BucketRegular); ok {
		t.Fatal("常规桶应已占满")
	}

	// 成人桶不受常规流量影响
	if ok, _ := l.Allow("beta", "client-1", BucketAdult); !ok {
		t.Error("常规流量不应占用成人桶额度")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1)

	l.Allow("beta", "client-1", BucketRegular)
	if ok, _ := l.Allow("beta", "client-1", BucketRegular); ok {
		t.Fatal("client-1 应已超限")
	}
	if ok, _ := l.Allow("beta", "client-2", BucketRegular); !ok {
		t.Error("不同 clientKey 的额度应相互独立")
	}
}

func TestAllow_UnknownProviderUsesDefaultPolicy(t *testing.T) {
	l := NewLimiter(nil)

	def := DefaultPolicy()
	for i := 0; i < def.Regular.PerMinute; i++ {
		if ok, _ := l.Allow("unknown", "client-1", BucketRegular); !ok {
			t.Fatalf("默认策略下第 %d 次请求不应被限流", i+1)
		}
	}
	if ok, _ := l.Allow("unknown", "client-1", BucketRegular); ok {
		t.Error("超过默认每分钟上限后应被拒绝")
	}
}

// 并发下计数不得超过上限：剪除-比较-追加必须是原子操作
func TestAllow_ConcurrentAccounting(t *testing.T) {
	const limit = 50
	l, _ := newTestLimiter(limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < limit*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("beta", "client-1", BucketRegular); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("并发下通过请求数 = %d, want %d", allowed, limit)
	}
}

func TestStartCleanup(t *testing.T) {
	l, current := newTestLimiter(10)
	l.Allow("beta", "idle-client", BucketRegular)

	*current = current.Add(2 * time.Hour)

	stop := l.StartCleanup(10*time.Millisecond, time.Hour)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		remaining := len(l.states)
		l.mu.Unlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("清理协程未回收空闲状态")
}
