// Package proposer implements the proposer role: it assigns instance
// numbers to client values, drives phase 1 (prepare/promise) and phase 2
// (accept-request/decide), and reproposes stalled instances with a
// randomized backoff to damp dueling-proposer livelock.
package proposer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// DefaultRetryMin and DefaultRetryMax bound the randomized repropose
// interval: fast enough to recover promptly from a stalled or crashed
// proposer, but slow enough to let an in-flight round finish before a
// duplicate is spawned, and randomized so that two competing proposers
// don't retry in lockstep forever.
const (
	DefaultRetryMin = 1 * time.Second
	DefaultRetryMax = 3 * time.Second
)

// Proposer drives the consensus instances assigned to it. Quorum is
// supplied by the caller (config.Quorum); it is never a literal.
type Proposer struct {
	selfID int
	quorum int

	transport transport.Transport
	logger    log.Logger

	RetryMin time.Duration
	RetryMax time.Duration

	mu       sync.Mutex
	counter  uint64
	nextInst wire.Instance
	open     map[wire.Instance]*instanceState
	rng      *rand.Rand
}

// New builds a Proposer. quorum must be the number of PROMISE replies
// required to proceed to ACCEPT-REQUEST, i.e. the acceptor majority,
// supplied by the caller from parsed configuration.
func New(selfID, quorum int, t transport.Transport, logger log.Logger) *Proposer {
	return &Proposer{
		selfID:    selfID,
		quorum:    quorum,
		transport: t,
		logger:    logger,
		RetryMin:  DefaultRetryMin,
		RetryMax:  DefaultRetryMax,
		nextInst:  -1,
		open:      make(map[wire.Instance]*instanceState),
		rng:       rand.New(rand.NewSource(int64(selfID) + 1)),
	}
}

// Run processes inbound frames and periodic repropose ticks until ctx is
// cancelled or the transport closes: one bounded receive, then one
// housekeeping tick, repeated.
func (p *Proposer) Run(ctx context.Context) error {
	for {
		recvCtx, cancel := context.WithTimeout(ctx, transport.DefaultPollInterval)
		f, err := p.transport.Recv(recvCtx)
		cancel()
		switch {
		case err == nil:
			p.handle(f)
		case ctx.Err() != nil, err == transport.ErrClosed:
			return nil
		case err == transport.ErrTimeout:
			// expected: time to run the housekeeping tick below
		default:
			level.Debug(p.logger).Log("msg", "recv error", "err", err)
		}
		p.tick()
	}
}

func (p *Proposer) handle(f wire.Frame) {
	switch f.Type {
	case wire.ClientValue:
		p.handleClientValue(f)
	case wire.Promise:
		p.handlePromise(f)
	case wire.Decide:
		p.handleDecide(f)
	default:
		// Acceptor/learner traffic this role doesn't act on.
	}
}

// handleClientValue handles a CLIENT_VALUE submission: allocate a fresh
// instance, start it at a fresh round (counter, selfID) from the proposer's
// single increasing counter, and send PREPARE.
func (p *Proposer) handleClientValue(f wire.Frame) {
	p.mu.Lock()
	p.nextInst++
	inst := p.nextInst
	p.counter++
	rnd := wire.Round{Counter: p.counter, NodeID: p.selfID}
	seq := wire.Seq{PropID: f.PropID, ClientID: f.ClientID}

	st := &instanceState{cVal: f.Value, seq: seq}
	st.resetForRound(rnd)
	p.open[inst] = st
	p.mu.Unlock()

	p.sendPrepare(inst, rnd, seq)
	level.Debug(p.logger).Log("msg", "opened instance", "inst", inst, "rnd", rnd, "seq", seq)
}

// handlePromise implements the PROMISE rule: promises for a stale round
// are dropped; once a quorum is reached for the current round, adopt the
// value of the highest v_rnd seen (the safety-critical step) and send
// ACCEPT-REQUEST. Triggers exactly once per round, on the promise that
// brings the count to quorum, so later promises for the same round are
// harmless duplicates.
func (p *Proposer) handlePromise(f wire.Frame) {
	p.mu.Lock()
	st, ok := p.open[f.Inst]
	if !ok || f.CRnd != st.cRnd {
		p.mu.Unlock()
		return
	}
	st.promises = append(st.promises, f)
	if len(st.promises) != p.quorum {
		p.mu.Unlock()
		return
	}

	var highest wire.Round
	for _, pr := range st.promises {
		if !pr.VRnd.IsZero() && highest.Less(pr.VRnd) {
			highest = pr.VRnd
			st.cVal = pr.VVal
		}
	}
	cRnd, cVal, seq := st.cRnd, st.cVal, st.seq
	p.mu.Unlock()

	p.sendAcceptRequest(f.Inst, cRnd, cVal, seq)
	level.Debug(p.logger).Log("msg", "quorum promised, accepting", "inst", f.Inst, "rnd", cRnd)
}

// handleDecide implements the DECIDE rule: the instance is learned, so it
// is no longer open and will not be reproposed.
func (p *Proposer) handleDecide(f wire.Frame) {
	p.mu.Lock()
	delete(p.open, f.Inst)
	p.mu.Unlock()
}

// tick reproposes any instance that has been open longer than a randomized
// interval, bumping to a fresh round and resending PREPARE. Reuses the
// existing instance number rather than allocating a new one, so a value
// stuck behind a stalled proposer is revived in its original log position
// instead of being duplicated at a new one.
func (p *Proposer) tick() {
	type retry struct {
		inst wire.Instance
		rnd  wire.Round
		seq  wire.Seq
	}
	var retries []retry
	now := time.Now()

	p.mu.Lock()
	for inst, st := range p.open {
		if now.Sub(st.pendingSince) < p.randomInterval() {
			continue
		}
		p.counter++
		rnd := wire.Round{Counter: p.counter, NodeID: p.selfID}
		st.resetForRound(rnd)
		retries = append(retries, retry{inst: inst, rnd: rnd, seq: st.seq})
	}
	p.mu.Unlock()

	for _, r := range retries {
		p.sendPrepare(r.inst, r.rnd, r.seq)
		level.Debug(p.logger).Log("msg", "reproposing", "inst", r.inst, "rnd", r.rnd)
	}
}

func (p *Proposer) randomInterval() time.Duration {
	span := int64(p.RetryMax - p.RetryMin)
	if span <= 0 {
		return p.RetryMin
	}
	return p.RetryMin + time.Duration(p.rng.Int63n(span))
}

func (p *Proposer) sendPrepare(inst wire.Instance, rnd wire.Round, seq wire.Seq) {
	err := p.transport.Send(transport.Acceptors, wire.Frame{
		Type: wire.Prepare,
		Inst: inst,
		CRnd: rnd,
		Seq:  seq,
	})
	if err != nil {
		level.Debug(p.logger).Log("msg", "send prepare failed", "inst", inst, "err", err)
	}
}

func (p *Proposer) sendAcceptRequest(inst wire.Instance, rnd wire.Round, val []byte, seq wire.Seq) {
	err := p.transport.Send(transport.Acceptors, wire.Frame{
		Type: wire.AcceptRequest,
		Inst: inst,
		CRnd: rnd,
		CVal: val,
		Seq:  seq,
	})
	if err != nil {
		level.Debug(p.logger).Log("msg", "send accept-request failed", "inst", inst, "err", err)
	}
}
