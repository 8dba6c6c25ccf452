// Package wire defines the messages that flow between paxcast roles and the
// framed codec used to put them on the network.
package wire

import "fmt"

// Round is a ballot identifier: a monotonically increasing per-proposer
// counter, tie-broken by the proposer's node ID so that no two proposers
// can ever produce the same round. The zero value is the "no round"
// sentinel and compares lower than every real round.
type Round struct {
	Counter uint64
	NodeID  int
}

// IsZero reports whether r is the sentinel "no round" value.
func (r Round) IsZero() bool {
	return r.Counter == 0 && r.NodeID == 0
}

// Less reports whether r sorts strictly before other: first by Counter,
// then by NodeID as a tiebreaker.
func (r Round) Less(other Round) bool {
	if r.Counter != other.Counter {
		return r.Counter < other.Counter
	}
	return r.NodeID < other.NodeID
}

// GreaterOrEqual reports whether r sorts at or after other.
func (r Round) GreaterOrEqual(other Round) bool {
	return !r.Less(other)
}

func (r Round) String() string {
	return fmt.Sprintf("(%d,%d)", r.Counter, r.NodeID)
}

// Seq correlates a client-submitted value with the proposer state tracking
// it. It plays no role in log ordering; Instance does that.
type Seq struct {
	PropID   int64
	ClientID int
}

func (s Seq) String() string {
	return fmt.Sprintf("{prop:%d client:%d}", s.PropID, s.ClientID)
}

// Instance identifies one Paxos consensus instance: one slot in the
// replicated log.
type Instance int64
