package proposer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/kelvinbranch/paxcast/internal/memtransport"
	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

func recvWithin(t *testing.T, h *memtransport.Handle, d time.Duration) wire.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	f, err := h.Recv(ctx)
	require.NoError(t, err)
	return f
}

func TestClientValueOpensInstanceAndSendsPrepare(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	acceptorsSide := net.Join(transport.Acceptors)
	p := New(1, 2, proposersSide, log.NewNopLogger())

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("v1"), ClientID: 9, PropID: 1})

	got := recvWithin(t, acceptorsSide, time.Second)
	require.Equal(t, wire.Prepare, got.Type)
	require.Equal(t, wire.Instance(0), got.Inst)
	require.Equal(t, wire.Round{Counter: 1, NodeID: 1}, got.CRnd)
	require.Equal(t, wire.Seq{PropID: 1, ClientID: 9}, got.Seq)
}

func TestQuorumPromiseTriggersAcceptRequestWithOwnValue(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	acceptorsSide := net.Join(transport.Acceptors)
	p := New(1, 2, proposersSide, log.NewNopLogger())

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("mine"), ClientID: 1, PropID: 1})
	prepare := recvWithin(t, acceptorsSide, time.Second)

	p.handlePromise(wire.Frame{Type: wire.Promise, Inst: prepare.Inst, CRnd: prepare.CRnd})
	p.handlePromise(wire.Frame{Type: wire.Promise, Inst: prepare.Inst, CRnd: prepare.CRnd})

	got := recvWithin(t, acceptorsSide, time.Second)
	require.Equal(t, wire.AcceptRequest, got.Type)
	require.Equal(t, []byte("mine"), got.CVal)
}

func TestPromiseWithPriorAcceptedValueIsAdopted(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	acceptorsSide := net.Join(transport.Acceptors)
	p := New(1, 2, proposersSide, log.NewNopLogger())

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("mine"), ClientID: 1, PropID: 1})
	prepare := recvWithin(t, acceptorsSide, time.Second)

	p.handlePromise(wire.Frame{
		Type: wire.Promise, Inst: prepare.Inst, CRnd: prepare.CRnd,
		VRnd: wire.Round{Counter: 1, NodeID: 5}, VVal: []byte("already-accepted"),
	})
	p.handlePromise(wire.Frame{Type: wire.Promise, Inst: prepare.Inst, CRnd: prepare.CRnd})

	got := recvWithin(t, acceptorsSide, time.Second)
	require.Equal(t, wire.AcceptRequest, got.Type)
	require.Equal(t, []byte("already-accepted"), got.CVal,
		"a promise carrying a prior accepted value must override the proposer's own value")
}

func TestStaleRoundPromiseIsDropped(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	acceptorsSide := net.Join(transport.Acceptors)
	p := New(1, 2, proposersSide, log.NewNopLogger())

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("v"), ClientID: 1, PropID: 1})
	prepare := recvWithin(t, acceptorsSide, time.Second)

	stale := wire.Round{Counter: prepare.CRnd.Counter - 1, NodeID: 99}
	p.handlePromise(wire.Frame{Type: wire.Promise, Inst: prepare.Inst, CRnd: stale})
	p.handlePromise(wire.Frame{Type: wire.Promise, Inst: prepare.Inst, CRnd: stale})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := acceptorsSide.Recv(ctx)
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestDecideClosesInstance(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	p := New(1, 2, proposersSide, log.NewNopLogger())

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("v"), ClientID: 1, PropID: 1})
	require.Len(t, p.open, 1)

	p.handleDecide(wire.Frame{Type: wire.Decide, Inst: 0})
	require.Empty(t, p.open)
}

func TestTickReproposesStalledInstance(t *testing.T) {
	net := memtransport.NewNetwork(rand.New(rand.NewSource(1)))
	proposersSide := net.Join(transport.Proposers)
	acceptorsSide := net.Join(transport.Acceptors)
	p := New(1, 2, proposersSide, log.NewNopLogger())
	p.RetryMin = time.Millisecond
	p.RetryMax = 2 * time.Millisecond

	p.handleClientValue(wire.Frame{Type: wire.ClientValue, Value: []byte("v"), ClientID: 1, PropID: 1})
	first := recvWithin(t, acceptorsSide, time.Second)

	time.Sleep(5 * time.Millisecond)
	p.tick()

	second := recvWithin(t, acceptorsSide, time.Second)
	require.Equal(t, wire.Prepare, second.Type)
	require.Equal(t, first.Inst, second.Inst)
	require.True(t, first.CRnd.Less(second.CRnd), "repropose must use a strictly higher round")
}
