// Package acceptor implements the Paxos acceptor role: a stateless message
// handler over a per-instance Store. Every handler is written to be safe
// under duplication and reordering, since the transport guarantees neither.
package acceptor

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// Acceptor drives the per-instance Paxos acceptor state machine: it answers
// PREPARE with PROMISE and ACCEPT-REQUEST with DECIDE, tracking the
// promised and accepted round per instance as in Lamport's "Paxos Made
// Simple".
type Acceptor struct {
	selfID    int
	transport transport.Transport
	store     Store
	logger    log.Logger
}

// New builds an Acceptor. store is usually a *MemoryStore; acceptor state
// is volatile by design, so no other implementation exists in this
// repository.
func New(selfID int, t transport.Transport, store Store, logger log.Logger) *Acceptor {
	return &Acceptor{selfID: selfID, transport: t, store: store, logger: logger}
}

// Run processes inbound frames until ctx is cancelled or the transport
// closes. It never blocks on send: every reply is fire-and-forget over the
// multicast fabric.
func (a *Acceptor) Run(ctx context.Context) error {
	for {
		f, err := a.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || err == transport.ErrClosed {
				return nil
			}
			if err == transport.ErrTimeout {
				continue
			}
			level.Debug(a.logger).Log("msg", "recv error", "err", err)
			continue
		}
		a.handle(f)
	}
}

func (a *Acceptor) handle(f wire.Frame) {
	switch f.Type {
	case wire.Prepare:
		a.handlePrepare(f)
	case wire.AcceptRequest:
		a.handleAcceptRequest(f)
	case wire.CatchupRequest:
		a.handleCatchupRequest(f)
	default:
		// Proposer/learner/client traffic this role doesn't act on.
	}
}

// handlePrepare answers PREPARE with PROMISE when c_rnd is strictly
// greater than the round already promised for this instance; anything else
// is dropped silently, since the network is untrusted and duplicates and
// stale rounds are expected.
func (a *Acceptor) handlePrepare(f wire.Frame) {
	cur := a.store.Load(f.Inst, a.selfID)
	if !cur.rnd.Less(f.CRnd) {
		return
	}
	a.store.SavePromise(f.Inst, f.CRnd)

	reply := wire.Frame{
		Type: wire.Promise,
		Inst: f.Inst,
		Seq:  f.Seq,
		CRnd: f.CRnd,
		VRnd: cur.vRnd,
		VVal: cur.vVal,
	}
	if err := a.transport.Send(transport.Proposers, reply); err != nil {
		level.Debug(a.logger).Log("msg", "send promise failed", "inst", f.Inst, "err", err)
		return
	}
	level.Debug(a.logger).Log("msg", "promised", "inst", f.Inst, "rnd", f.CRnd)
}

// handleAcceptRequest implements the ACCEPT-REQUEST rule: an instance this
// acceptor never promised on (no PREPARE ever seen) is dropped outright,
// never implicitly promised; otherwise accept if the round is at least the
// currently promised round, and announce DECIDE to both the learner and
// proposer groups carrying this accept's own round, value, and seq. The
// store separately remembers the first accepted value for this instance so
// a later catch-up request can answer with it even if a higher round has
// since accepted something else.
func (a *Acceptor) handleAcceptRequest(f wire.Frame) {
	if !a.store.Exists(f.Inst) {
		return
	}
	cur := a.store.Load(f.Inst, a.selfID)
	if f.CRnd.Less(cur.rnd) {
		return
	}
	a.store.SaveAccepted(f.Inst, f.CRnd, f.CVal, f.Seq)

	decide := wire.Frame{
		Type: wire.Decide,
		Inst: f.Inst,
		Seq:  f.Seq,
		VRnd: f.CRnd,
		VVal: f.CVal,
	}
	if err := a.transport.Send(transport.Learners, decide); err != nil {
		level.Debug(a.logger).Log("msg", "send decide to learners failed", "inst", f.Inst, "err", err)
	}
	if err := a.transport.Send(transport.Proposers, decide); err != nil {
		level.Debug(a.logger).Log("msg", "send decide to proposers failed", "inst", f.Inst, "err", err)
	}
	level.Debug(a.logger).Log("msg", "accepted", "inst", f.Inst, "rnd", f.CRnd)
}

// handleCatchupRequest answers with whatever of the requested instances
// this acceptor has a recorded decision for; missing entries are simply
// omitted, never an error.
func (a *Acceptor) handleCatchupRequest(f wire.Frame) {
	var entries []wire.CatchupEntry
	for _, inst := range f.Missing {
		seq, val, ok := a.store.Decision(inst)
		if !ok {
			continue
		}
		entries = append(entries, wire.CatchupEntry{Inst: inst, Seq: seq, Value: val})
	}
	if len(entries) == 0 {
		return
	}
	reply := wire.Frame{
		Type:    wire.CatchupValues,
		Catchup: entries,
	}
	if err := a.transport.Send(transport.Learners, reply); err != nil {
		level.Debug(a.logger).Log("msg", "send catchup values failed", "err", err)
	}
}
