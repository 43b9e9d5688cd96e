package transport

import (
	"sync"
	"testing"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

func TestMemory_RecordsConcurrentPushes(t *testing.T) {
	m := &Memory{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := m.Push("shards/00-1f/db1", "n1"); res != shardsync.Delivered {
				t.Errorf("unexpected result %v", res)
			}
		}()
	}
	wg.Wait()
	if got := len(m.Snapshot()); got != 8 {
		t.Fatalf("expected 8 recorded pushes, got %d", got)
	}
}

var _ shardsync.Transport = (*Memory)(nil)
var _ shardsync.Transport = (*NATSPush)(nil)
