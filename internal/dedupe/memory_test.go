package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

func TestMemoryDedupe_FirstSeenThenDuplicate(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger(), 200*time.Millisecond, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "100:0xabc:1"

	seen, err := m.Seen(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatalf("expected first Seen=false, got true")
	}

	seen, err = m.Seen(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatalf("expected second Seen=true (duplicate), got false")
	}
}

func TestMemoryDedupe_Expiration(t *testing.T) {
	t.Parallel()

	ttl := 50 * time.Millisecond
	m := NewInMemoryDedupe(newTestLogger(), ttl, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "101:0xdef:7"

	if seen, _ := m.Seen(ctx, id); seen {
		t.Fatalf("first Seen must be false")
	}

	time.Sleep(ttl + 20*time.Millisecond)

	if seen, _ := m.Seen(ctx, id); seen {
		t.Fatalf("after TTL expired, Seen must be false again (reinsert), got true")
	}
}

func TestMemoryDedupe_JanitorCleansUp(t *testing.T) {
	t.Parallel()

	ttl := 20 * time.Millisecond
	janitorEvery := 15 * time.Millisecond

	m := NewInMemoryDedupe(newTestLogger(), ttl, janitorEvery)
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = m.Seen(ctx, fmt.Sprintf("k-%d", i))
	}

	time.Sleep(ttl + 3*janitorEvery)

	m.mu.RLock()
	size := len(m.items)
	m.mu.RUnlock()

	if size != 0 {
		t.Fatalf("expected janitor to clean expired items, but map size=%d", size)
	}
}

func TestMemoryDedupe_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger(), 50*time.Millisecond, 10*time.Millisecond)
	m.Close()
	m.Close()
}

func TestMemoryDedupe_ConcurrentSameID(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger(), 500*time.Millisecond, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "same-id"
	const workers = 64

	var wg sync.WaitGroup
	wg.Add(workers)

	var mu sync.Mutex
	var firstCount, dupCount int

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			seen, err := m.Seen(ctx, id)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			if seen {
				dupCount++
			} else {
				firstCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstCount != 1 {
		t.Fatalf("expected exactly one first insert (false), got %d", firstCount)
	}
	if dupCount != workers-1 {
		t.Fatalf("expected %d duplicates (true), got %d", workers-1, dupCount)
	}
}
