package shardsync

// Window is the bucketed debounce queue. Bucket 0 holds the shards that
// arrived since the last rotation, the last bucket is next in line to flush.
// A shard is a member of at most one bucket at a time; further updates for a
// queued shard are absorbed until its bucket rotates out.
//
// Window is not safe for concurrent use. The scheduler actor is its only
// owner.
type Window struct {
	buckets []map[ShardName]struct{}
}

// NewWindow returns a window of n buckets. n is clamped to at least one.
func NewWindow(n int) *Window {
	w := &Window{}
	w.Resize(n)
	return w
}

// Len returns the number of buckets.
func (w *Window) Len() int { return len(w.buckets) }

// Pending returns the total number of queued shards across all buckets.
func (w *Window) Pending() int {
	total := 0
	for _, b := range w.buckets {
		total += len(b)
	}
	return total
}

// Contains reports whether shard is queued in any bucket.
func (w *Window) Contains(shard ShardName) bool {
	for _, b := range w.buckets {
		if _, ok := b[shard]; ok {
			return true
		}
	}
	return false
}

// Insert queues shard into the newest bucket unless it is already waiting
// somewhere in the window. Returns true when the shard was added.
func (w *Window) Insert(shard ShardName) bool {
	if w.Contains(shard) {
		return false
	}
	w.buckets[0][shard] = struct{}{}
	return true
}

// RotateOldest removes the oldest bucket, shifts every remaining bucket one
// slot toward the old end and prepends a fresh empty bucket. The removed
// bucket's members are returned for flushing.
func (w *Window) RotateOldest() []ShardName {
	oldest := w.buckets[len(w.buckets)-1]
	shards := make([]ShardName, 0, len(oldest))
	for s := range oldest {
		shards = append(shards, s)
	}
	copy(w.buckets[1:], w.buckets[:len(w.buckets)-1])
	w.buckets[0] = make(map[ShardName]struct{})
	return shards
}

// Resize changes the window to n buckets (clamped to at least one) without
// losing any queued shard. Shrinking merges the oldest surplus buckets into
// a single oldest bucket; growing prepends empty buckets at the newest end.
func (w *Window) Resize(n int) {
	if n < 1 {
		n = 1
	}
	cur := len(w.buckets)
	switch {
	case cur == 0:
		w.buckets = make([]map[ShardName]struct{}, n)
		for i := range w.buckets {
			w.buckets[i] = make(map[ShardName]struct{})
		}
	case n < cur:
		// Union the oldest (cur-n+1) buckets so nothing queued is dropped.
		merged := make(map[ShardName]struct{})
		for _, b := range w.buckets[n-1:] {
			for s := range b {
				merged[s] = struct{}{}
			}
		}
		w.buckets = append(w.buckets[:n-1], merged)
	case n > cur:
		fresh := make([]map[ShardName]struct{}, n-cur, n)
		for i := range fresh {
			fresh[i] = make(map[ShardName]struct{})
		}
		w.buckets = append(fresh, w.buckets...)
	}
}

// Snapshot returns the queued shards per bucket, newest first.
func (w *Window) Snapshot() [][]string {
	out := make([][]string, len(w.buckets))
	for i, b := range w.buckets {
		names := make([]string, 0, len(b))
		for s := range b {
			names = append(names, string(s))
		}
		out[i] = names
	}
	return out
}
