package proposer

import (
	"time"

	"github.com/kelvinbranch/paxcast/internal/wire"
)

// instanceState is the proposer-local view of one Paxos instance, created
// on the first CLIENT_VALUE assigned to it and dropped once DECIDE is
// observed.
type instanceState struct {
	cRnd         wire.Round
	cVal         []byte
	seq          wire.Seq
	promises     []wire.Frame
	pendingSince time.Time
}

func (s *instanceState) resetForRound(rnd wire.Round) {
	s.cRnd = rnd
	s.promises = s.promises[:0]
	s.pendingSince = time.Now()
}
