package shardsync

import (
	"fmt"
	"sort"
	"testing"
)

func windowContents(w *Window) []string {
	var all []string
	for _, b := range w.Snapshot() {
		all = append(all, b...)
	}
	sort.Strings(all)
	return all
}

func TestWindow_InsertDebounces(t *testing.T) {
	w := NewWindow(11)
	for i := 0; i < 3; i++ {
		w.Insert("shards/00-1f/db1")
	}
	if got := w.Pending(); got != 1 {
		t.Fatalf("expected one queued shard, got %d", got)
	}
	if got := len(w.Snapshot()[0]); got != 1 {
		t.Fatalf("expected the shard exactly once in bucket 0, got %d entries", got)
	}
}

func TestWindow_InsertSkipsShardWaitingInOlderBucket(t *testing.T) {
	w := NewWindow(3)
	w.Insert("shards/00-1f/db1")
	w.RotateOldest() // shard now sits in bucket 1
	if w.Insert("shards/00-1f/db1") {
		t.Fatalf("shard waiting in an older bucket must not be re-queued")
	}
	if got := w.Pending(); got != 1 {
		t.Fatalf("expected one queued shard, got %d", got)
	}
}

func TestWindow_RotateReleasesShardForRequeue(t *testing.T) {
	w := NewWindow(2)
	w.Insert("shards/00-1f/db1")
	w.RotateOldest() // bucket 1
	flushed := w.RotateOldest()
	if len(flushed) != 1 || flushed[0] != "shards/00-1f/db1" {
		t.Fatalf("expected the shard flushed on second rotation, got %v", flushed)
	}
	if !w.Insert("shards/00-1f/db1") {
		t.Fatalf("flushed shard should be insertable again")
	}
}

func TestWindow_RotatePreservesAges(t *testing.T) {
	w := NewWindow(3)
	w.Insert("shards/00-1f/a")
	w.RotateOldest()
	w.Insert("shards/00-1f/b")
	w.RotateOldest()
	w.Insert("shards/00-1f/c")
	// a is oldest now; next two rotations must flush a then b.
	if got := w.RotateOldest(); len(got) != 1 || got[0] != "shards/00-1f/a" {
		t.Fatalf("expected oldest shard a, got %v", got)
	}
	if got := w.RotateOldest(); len(got) != 1 || got[0] != "shards/00-1f/b" {
		t.Fatalf("expected shard b next, got %v", got)
	}
}

func TestWindow_ShrinkMergesOldest(t *testing.T) {
	// Window of 11 with {a}, {b}, {c} in the three oldest buckets.
	w := NewWindow(11)
	w.Insert("c")
	w.RotateOldest()
	w.Insert("b")
	w.RotateOldest()
	w.Insert("a")
	for i := 0; i < 8; i++ {
		w.RotateOldest()
	}
	// a, b, c now occupy buckets 8, 9, 10.
	snap := w.Snapshot()
	for i, want := range map[int]string{8: "a", 9: "b", 10: "c"} {
		if len(snap[i]) != 1 || snap[i][0] != want {
			t.Fatalf("setup: bucket %d = %v, want {%s}", i, snap[i], want)
		}
	}

	w.Resize(3)
	if w.Len() != 3 {
		t.Fatalf("expected 3 buckets after shrink, got %d", w.Len())
	}
	oldest := w.Snapshot()[2]
	sort.Strings(oldest)
	if len(oldest) != 3 || oldest[0] != "a" || oldest[1] != "b" || oldest[2] != "c" {
		t.Fatalf("expected merged oldest bucket {a,b,c}, got %v", oldest)
	}
	if got := w.Pending(); got != 3 {
		t.Fatalf("resize lost entries: pending=%d", got)
	}
}

func TestWindow_GrowPrependsEmptyBuckets(t *testing.T) {
	w := NewWindow(2)
	w.Insert("shards/00-1f/db1")
	w.RotateOldest() // shard in the oldest bucket
	w.Resize(5)
	if w.Len() != 5 {
		t.Fatalf("expected 5 buckets, got %d", w.Len())
	}
	snap := w.Snapshot()
	if len(snap[4]) != 1 {
		t.Fatalf("queued shard should stay in the oldest bucket, snapshot=%v", snap)
	}
	for i := 0; i < 4; i++ {
		if len(snap[i]) != 0 {
			t.Fatalf("bucket %d should be empty after grow, got %v", i, snap[i])
		}
	}
}

func TestWindow_ResizeNeverLosesEntries(t *testing.T) {
	w := NewWindow(7)
	for i := 0; i < 25; i++ {
		w.Insert(ShardName(fmt.Sprintf("shards/00-1f/db%02d", i)))
		if i%3 == 0 {
			w.RotateOldest() // spread entries across bucket ages
		}
	}
	want := windowContents(w)
	if len(want) < 10 {
		t.Fatalf("setup: expected a well-filled window, got %d entries", len(want))
	}
	for _, n := range []int{3, 1, 9, 2, 11, 7} {
		w.Resize(n)
		if w.Len() != n {
			t.Fatalf("resize to %d produced %d buckets", n, w.Len())
		}
		if got := windowContents(w); len(got) != len(want) {
			t.Fatalf("resize to %d changed entry count: got %d want %d", n, len(got), len(want))
		}
	}
	got := windowContents(w)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry set changed across resizes: got %v", got)
		}
	}
}

func TestWindow_ResizeClampsToOne(t *testing.T) {
	w := NewWindow(0)
	if w.Len() != 1 {
		t.Fatalf("window must always have at least one bucket, got %d", w.Len())
	}
	w.Insert("shards/00-1f/db1")
	w.Resize(-2)
	if w.Len() != 1 || w.Pending() != 1 {
		t.Fatalf("clamped resize lost state: len=%d pending=%d", w.Len(), w.Pending())
	}
}
