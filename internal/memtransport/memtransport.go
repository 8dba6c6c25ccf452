// Package memtransport is an in-process, channel-based implementation of
// transport.Transport used by tests to exercise the acceptor/proposer/
// learner state machines deterministically, without opening real sockets.
// It models the same best-effort, unordered, at-least-once-ish delivery
// contract as internal/mcast, and additionally lets tests inject loss and
// reordering to reproduce dropped and reordered datagrams end to end.
package memtransport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// Network is the shared "wire" joining every Handle created from it. Tests
// create one Network per scenario and one Handle per simulated process.
type Network struct {
	mu   sync.Mutex
	subs map[transport.Group][]chan wire.Frame

	// DropRate is the probability, in [0,1), that a Send to a given
	// subscriber is lost. Zero by default (no loss).
	DropRate float64

	// ReorderMaxDelay, if non-zero, causes each delivered frame to be
	// handed to its subscriber after a random delay in [0, ReorderMaxDelay],
	// so frames sent in order may arrive out of order.
	ReorderMaxDelay time.Duration

	rng *rand.Rand
}

// NewNetwork creates an empty network. Pass a seeded *rand.Rand for
// reproducible loss/reorder injection in tests; nil uses a source seeded
// with 1.
func NewNetwork(rng *rand.Rand) *Network {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Network{
		subs: make(map[transport.Group][]chan wire.Frame),
		rng:  rng,
	}
}

// Join creates a Handle that receives everything Sent to group by any
// Handle on this Network (including itself), and can Send to any group.
// Passing "" joins no group; the resulting Handle can send but Recv always
// blocks until ctx is done (used to model the client role, which has no
// inbound group of its own).
func (n *Network) Join(group transport.Group) *Handle {
	h := &Handle{
		network: n,
		group:   group,
		inbox:   make(chan wire.Frame, 256),
		closed:  make(chan struct{}),
	}
	if group != "" {
		n.mu.Lock()
		n.subs[group] = append(n.subs[group], h.inbox)
		n.mu.Unlock()
	}
	return h
}

func (n *Network) deliver(group transport.Group, f wire.Frame) {
	n.mu.Lock()
	subs := append([]chan wire.Frame(nil), n.subs[group]...)
	n.mu.Unlock()

	for _, inbox := range subs {
		inbox := inbox
		if n.DropRate > 0 && n.rng.Float64() < n.DropRate {
			continue
		}
		if n.ReorderMaxDelay > 0 {
			delay := time.Duration(n.rng.Int63n(int64(n.ReorderMaxDelay) + 1))
			time.AfterFunc(delay, func() { sendNonBlocking(inbox, f) })
			continue
		}
		sendNonBlocking(inbox, f)
	}
}

func sendNonBlocking(inbox chan wire.Frame, f wire.Frame) {
	select {
	case inbox <- f:
	default:
		// Full inbox: drop, matching the best-effort delivery contract.
	}
}

// Handle is one process's view of a Network. It implements
// transport.Transport.
type Handle struct {
	network *Network
	group   transport.Group
	inbox   chan wire.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func (h *Handle) Send(group transport.Group, f wire.Frame) error {
	select {
	case <-h.closed:
		return transport.ErrClosed
	default:
	}
	h.network.deliver(group, f)
	return nil
}

func (h *Handle) Recv(ctx context.Context) (wire.Frame, error) {
	select {
	case <-h.closed:
		return wire.Frame{}, transport.ErrClosed
	case f := <-h.inbox:
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, transport.ErrTimeout
	}
}

func (h *Handle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}
