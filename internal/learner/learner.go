// Package learner implements the learner role: it collects DECIDE
// messages, emits the decided log in strict, contiguous instance order,
// and requests catch-up from acceptors when a gap persists.
package learner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// DefaultCatchupTimeout is how long the learner waits without a newly
// learned decision or an emission before requesting catch-up.
const DefaultCatchupTimeout = 2 * time.Second

// Learner assembles the decided log from DECIDE and CATCHUP_VALUES
// messages and writes it to out, one value per line, flushed after every
// emission.
type Learner struct {
	transport transport.Transport
	logger    log.Logger
	out       *bufio.Writer

	CatchupTimeout time.Duration

	learned      map[wire.Instance][]byte
	lastPrinted  wire.Instance
	lastProgress time.Time
}

// New builds a Learner writing decided values to out.
func New(t transport.Transport, out io.Writer, logger log.Logger) *Learner {
	return &Learner{
		transport:      t,
		logger:         logger,
		out:            bufio.NewWriter(out),
		CatchupTimeout: DefaultCatchupTimeout,
		learned:        make(map[wire.Instance][]byte),
		lastPrinted:    -1,
		lastProgress:   time.Now(),
	}
}

// Run processes inbound frames and periodic catch-up checks until ctx is
// cancelled or the transport closes. On return it flushes any contiguous
// prefix still emittable and discards the rest: a non-contiguous tail is
// never safe to emit out of order.
func (l *Learner) Run(ctx context.Context) error {
	defer l.shutdown()
	for {
		recvCtx, cancel := context.WithTimeout(ctx, transport.DefaultPollInterval)
		f, err := l.transport.Recv(recvCtx)
		cancel()
		switch {
		case err == nil:
			l.handle(f)
		case ctx.Err() != nil, err == transport.ErrClosed:
			return nil
		case err == transport.ErrTimeout:
			// expected: time to check for a stalled gap
		default:
			level.Debug(l.logger).Log("msg", "recv error", "err", err)
		}
		l.checkCatchup()
	}
}

func (l *Learner) handle(f wire.Frame) {
	switch f.Type {
	case wire.Decide:
		l.recordDecide(f.Inst, f.VVal)
	case wire.CatchupValues:
		for _, e := range f.Catchup {
			l.recordDecide(e.Inst, e.Value)
		}
	default:
		// Acceptor/proposer traffic this role doesn't act on.
	}
}

// recordDecide implements the DECIDE rule: duplicates for an
// already-learned instance are dropped; a new decision restarts the
// catch-up timer, then emission is re-run since this may have filled the
// next gap.
func (l *Learner) recordDecide(inst wire.Instance, value []byte) {
	if inst <= l.lastPrinted {
		return
	}
	if _, ok := l.learned[inst]; ok {
		return
	}
	l.learned[inst] = value
	l.lastProgress = time.Now()
	l.emit()
}

// emit writes out every contiguous value starting at lastPrinted+1.
func (l *Learner) emit() {
	for {
		next := l.lastPrinted + 1
		val, ok := l.learned[next]
		if !ok {
			return
		}
		fmt.Fprintf(l.out, "%s\n", val)
		l.out.Flush()
		delete(l.learned, next)
		l.lastPrinted = next
		l.lastProgress = time.Now()
	}
}

// checkCatchup asks the acceptors to resend the decisions missing below the
// highest buffered instance once CatchupTimeout has passed with no newly
// learned decision and no emission. Nothing is sent while no gap blocks
// emission.
func (l *Learner) checkCatchup() {
	if time.Since(l.lastProgress) < l.CatchupTimeout {
		return
	}
	missing := l.missingInstances()
	if len(missing) == 0 {
		return
	}
	err := l.transport.Send(transport.Acceptors, wire.Frame{
		Type:    wire.CatchupRequest,
		Missing: missing,
	})
	if err != nil {
		level.Debug(l.logger).Log("msg", "send catchup-request failed", "err", err)
	}
	l.lastProgress = time.Now()
}

// missingInstances returns every instance from lastPrinted+1 up to the
// highest instance already buffered that has no value yet, so a single
// catch-up round can close every hole a reordered or dropped DECIDE left
// behind. It returns nil when nothing is buffered.
func (l *Learner) missingInstances() []wire.Instance {
	next := l.lastPrinted + 1
	highest := next - 1
	for inst := range l.learned {
		if inst > highest {
			highest = inst
		}
	}
	if highest < next {
		return nil
	}
	var missing []wire.Instance
	for inst := next; inst <= highest; inst++ {
		if _, ok := l.learned[inst]; !ok {
			missing = append(missing, inst)
		}
	}
	return missing
}

func (l *Learner) shutdown() {
	l.emit()
	level.Info(l.logger).Log("msg", "learner shutting down", "last_printed", l.lastPrinted, "discarded", len(l.learned))
}
