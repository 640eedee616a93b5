package audit

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"backend/internal/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

func TestTrail_AppendAndRecent(t *testing.T) {
	trail := NewTrail(10)

	for i := 0; i < 3; i++ {
		trail.Append(Entry{
			ProviderID: fmt.Sprintf("provider-%d", i),
			SessionID:  "sess-1",
			Operation:  "generate",
			Success:    true,
			Duration:   time.Duration(i) * time.Millisecond,
		})
	}

	entries := trail.Recent(0)
	if len(entries) != 3 {
		t.Fatalf("Recent() 返回 %d 条, want 3", len(entries))
	}
	// 新→旧排序
	if entries[0].ProviderID != "provider-2" || entries[2].ProviderID != "provider-0" {
		t.Errorf("Recent() 排序错误: %v", entries)
	}
}

func TestTrail_EvictsOldestWhenFull(t *testing.T) {
	trail := NewTrail(5)

	for i := 0; i < 8; i++ {
		trail.Append(Entry{ProviderID: fmt.Sprintf("p-%d", i), Operation: "generate", Success: true})
	}

	if trail.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", trail.Len())
	}

	entries := trail.Recent(0)
	if entries[0].ProviderID != "p-7" {
		t.Errorf("最新条目 = %s, want p-7", entries[0].ProviderID)
	}
	if entries[4].ProviderID != "p-3" {
		t.Errorf("最旧条目 = %s, want p-3（更早的应被淘汰）", entries[4].ProviderID)
	}
}

func TestTrail_RecentLimit(t *testing.T) {
	trail := NewTrail(10)
	for i := 0; i < 6; i++ {
		trail.Append(Entry{ProviderID: fmt.Sprintf("p-%d", i), Success: true})
	}

	if got := len(trail.Recent(2)); got != 2 {
		t.Errorf("Recent(2) 返回 %d 条", got)
	}
	if got := len(trail.Recent(100)); got != 6 {
		t.Errorf("Recent(100) 返回 %d 条, want 6", got)
	}
}

func TestTrail_ConcurrentAppend(t *testing.T) {
	trail := NewTrail(100)

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			trail.Append(Entry{ProviderID: "p", Operation: "generate", Success: n%2 == 0})
		}(i)
	}
	wg.Wait()

	if trail.Len() != 100 {
		t.Errorf("并发写入后 Len() = %d, want 100", trail.Len())
	}
}

func TestTrail_DefaultCapacity(t *testing.T) {
	trail := NewTrail(0)
	if trail.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", trail.capacity, DefaultCapacity)
	}
}
