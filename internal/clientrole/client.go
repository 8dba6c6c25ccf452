// Package clientrole implements the client role: it reads newline-
// delimited values from an input stream and submits each as a
// CLIENT_VALUE to the proposer group, pacing sends to avoid bursting past
// what a lossy loopback multicast socket can absorb.
package clientrole

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/kelvinbranch/paxcast/internal/transport"
	"github.com/kelvinbranch/paxcast/internal/wire"
)

// DefaultPacingDelay is the fixed delay between successive CLIENT_VALUE
// sends, small enough to keep up with a human or scripted input stream but
// enough to avoid bursting past what a lossy loopback multicast socket can
// absorb.
const DefaultPacingDelay = 2 * time.Millisecond

// Client reads lines from in and submits each as a CLIENT_VALUE.
type Client struct {
	selfID    int
	transport transport.Transport
	logger    log.Logger

	PacingDelay time.Duration

	nextPropID int64
}

// New builds a Client identified by selfID (used as ClientID on the wire).
func New(selfID int, t transport.Transport, logger log.Logger) *Client {
	return &Client{
		selfID:      selfID,
		transport:   t,
		logger:      logger,
		PacingDelay: DefaultPacingDelay,
	}
}

// Run reads lines from in until EOF or ctx is cancelled, submitting one
// CLIENT_VALUE per line. It returns nil on a clean EOF.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.submit(line)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.pacing()):
		}
	}
	return scanner.Err()
}

func (c *Client) submit(value string) {
	c.nextPropID++
	f := wire.Frame{
		Type:     wire.ClientValue,
		Value:    []byte(value),
		ClientID: c.selfID,
		PropID:   c.nextPropID,
	}
	if err := c.transport.Send(transport.Proposers, f); err != nil {
		level.Debug(c.logger).Log("msg", "send client value failed", "prop_id", c.nextPropID, "err", err)
		return
	}
	level.Debug(c.logger).Log("msg", "submitted value", "prop_id", c.nextPropID)
}

func (c *Client) pacing() time.Duration {
	if c.PacingDelay <= 0 {
		return DefaultPacingDelay
	}
	return c.PacingDelay
}
