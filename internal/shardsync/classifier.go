package shardsync

import "strings"

// ShardName is the full name of one shard replica, e.g.
// "shards/00000000-1fffffff/db1".
type ShardName string

// EventKind is the lifecycle transition reported by the database update feed.
type EventKind int

const (
	Updated EventKind = iota
	Deleted
)

// ControlDB identifies one of the cluster-metadata databases that bypass
// debouncing and get pushed immediately.
type ControlDB int

const (
	ControlNodes ControlDB = iota
	ControlShards
	ControlUsers
)

func (c ControlDB) String() string {
	switch c {
	case ControlNodes:
		return "nodes"
	case ControlShards:
		return "shards"
	case ControlUsers:
		return "users"
	}
	return "unknown"
}

// Class is the classification of an incoming update-feed event.
type Class int

const (
	Ignored Class = iota
	ControlUpdated
	ShardUpdated
	ShardDeleted
)

// ControlSet names the three control databases for a cluster.
type ControlSet struct {
	Nodes  string
	Shards string
	Users  string
}

// Classified is the result of classifying one feed event.
type Classified struct {
	Class   Class
	Control ControlDB // valid when Class == ControlUpdated
	Shard   ShardName // valid when Class is ShardUpdated or ShardDeleted
}

const shardPrefix = "shards/"

// Classify inspects a feed event and decides how the scheduler should treat
// it. Control database deletes and anything unrecognized are Ignored.
// Classification is pure; it never touches scheduler state.
func Classify(ctl ControlSet, name string, kind EventKind) Classified {
	if kind == Updated {
		switch name {
		case ctl.Nodes:
			return Classified{Class: ControlUpdated, Control: ControlNodes}
		case ctl.Shards:
			return Classified{Class: ControlUpdated, Control: ControlShards}
		case ctl.Users:
			return Classified{Class: ControlUpdated, Control: ControlUsers}
		}
	}
	if !strings.HasPrefix(name, shardPrefix) {
		return Classified{Class: Ignored}
	}
	switch kind {
	case Updated:
		return Classified{Class: ShardUpdated, Shard: ShardName(name)}
	case Deleted:
		// A delete is only actionable when the name carries the full
		// shards/<range>/<db> shape; a bare prefix identifies nothing
		// we could forget.
		if isFullShardName(name) {
			return Classified{Class: ShardDeleted, Shard: ShardName(name)}
		}
	}
	return Classified{Class: Ignored}
}

// isFullShardName reports whether name has a non-empty range segment
// (containing the range separator) and a non-empty database name after it.
func isFullShardName(name string) bool {
	rest := name[len(shardPrefix):]
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return false
	}
	return strings.IndexByte(rest[:i], '-') > 0
}
