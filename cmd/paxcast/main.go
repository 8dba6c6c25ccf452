// Command paxcast runs one role of the consensus engine: an acceptor, a
// proposer, a learner, or a client, wired to a real UDP multicast
// transport configured by a config file.
//
// Usage: paxcast <config_path> <role> <id>
// role is one of acceptor, proposer, learner, client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/kelvinbranch/paxcast/internal/acceptor"
	"github.com/kelvinbranch/paxcast/internal/clientrole"
	"github.com/kelvinbranch/paxcast/internal/config"
	"github.com/kelvinbranch/paxcast/internal/learner"
	"github.com/kelvinbranch/paxcast/internal/logging"
	"github.com/kelvinbranch/paxcast/internal/mcast"
	"github.com/kelvinbranch/paxcast/internal/proposer"
	"github.com/kelvinbranch/paxcast/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "paxcast:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: paxcast <config_path> <role> <id>")
	}
	configPath, role, idStr := args[0], args[1], args[2]

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return errors.Wrapf(err, "invalid id %q", idStr)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger := logging.New(role, id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		level.Info(logger).Log("msg", "shutting down")
		cancel()
	}()

	switch role {
	case "acceptor":
		return runAcceptor(ctx, cfg, id, logger)
	case "proposer":
		return runProposer(ctx, cfg, id, logger)
	case "learner":
		return runLearner(ctx, cfg, logger)
	case "client":
		return runClient(ctx, cfg, id, logger)
	default:
		return errors.Errorf("unknown role %q (want acceptor, proposer, learner, or client)", role)
	}
}

// bindHost is deliberately "0.0.0.0" rather than any configured group
// address: the bind address is the *local* interface a role listens on,
// which internal/netsel resolves to this host's private IP via
// go-sockaddr, not the multicast group it's joining.
const bindHost = "0.0.0.0"

func runAcceptor(ctx context.Context, cfg config.Config, id int, logger log.Logger) error {
	t, err := mcast.New(cfg.Endpoints, transport.Acceptors, bindHost)
	if err != nil {
		return errors.Wrap(err, "open acceptor transport")
	}
	defer t.Close()

	a := acceptor.New(id, t, acceptor.NewMemoryStore(), logger)
	return a.Run(ctx)
}

func runProposer(ctx context.Context, cfg config.Config, id int, logger log.Logger) error {
	t, err := mcast.New(cfg.Endpoints, transport.Proposers, bindHost)
	if err != nil {
		return errors.Wrap(err, "open proposer transport")
	}
	defer t.Close()

	p := proposer.New(id, cfg.Quorum, t, logger)
	return p.Run(ctx)
}

func runLearner(ctx context.Context, cfg config.Config, logger log.Logger) error {
	t, err := mcast.New(cfg.Endpoints, transport.Learners, bindHost)
	if err != nil {
		return errors.Wrap(err, "open learner transport")
	}
	defer t.Close()

	l := learner.New(t, os.Stdout, logger)
	return l.Run(ctx)
}

func runClient(ctx context.Context, cfg config.Config, id int, logger log.Logger) error {
	t, err := mcast.New(cfg.Endpoints, "", bindHost)
	if err != nil {
		return errors.Wrap(err, "open client transport")
	}
	defer t.Close()

	c := clientrole.New(id, t, logger)
	return c.Run(ctx, os.Stdin)
}
