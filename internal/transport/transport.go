// Package transport defines the abstraction every paxcast role talks to:
// three multicast groups (acceptors, proposers, learners), best-effort,
// unordered, at-least-once-ish delivery. internal/mcast implements it over
// real UDP multicast sockets; internal/memtransport implements it in
// process for deterministic tests.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/kelvinbranch/paxcast/internal/wire"
)

// Group names one of the three multicast groups a message can be sent to
// or received from. Any process may Send to any Group; only a process that
// has joined a Group receives messages delivered to it.
type Group string

const (
	Acceptors Group = "acceptors"
	Proposers Group = "proposers"
	Learners  Group = "learners"
)

// Endpoint is a host:port multicast address for one Group.
type Endpoint struct {
	Host string
	Port int
}

// ErrTimeout is returned by Recv when no frame arrived within the
// requested deadline. It is not an error condition for the caller: a
// timeout is how the reactor loop gets control back to run its
// housekeeping tick.
var ErrTimeout = errors.New("transport: receive timeout")

// ErrClosed is returned by Recv/Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is what every role's event loop depends on. Implementations
// must be safe for concurrent use by one reader and one or more senders.
type Transport interface {
	// Send delivers f to every process joined to group. Best-effort: may
	// be lost, duplicated, or reordered by the implementation.
	Send(group Group, f wire.Frame) error

	// Recv blocks until a frame addressed to this transport's joined
	// group arrives or ctx is done, returning ErrTimeout if ctx's
	// deadline elapses first.
	Recv(ctx context.Context) (wire.Frame, error)

	// Close releases any sockets/goroutines/channels owned by the
	// transport. Idempotent.
	Close() error
}

// DefaultPollInterval is the suggested Recv deadline granularity for role
// event loops: a steady 10-100ms poll is plenty given the second-scale
// retry intervals elsewhere in the system.
const DefaultPollInterval = 50 * time.Millisecond
