// Package config reads the paxcast configuration file: whitespace-delimited
// lines of "role host port" mapping each of clients/proposers/acceptors/
// learners to its multicast endpoint, plus one extension line, "quorum N":
// the acceptors line gives a single shared multicast address, which cannot
// itself convey how many acceptor processes exist, so the quorum a
// proposer must reach is configured explicitly.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kelvinbranch/paxcast/internal/transport"
)

// DefaultQuorum is used when the config file has no "quorum" line,
// matching the reference configuration of 3 acceptors, majority 2.
const DefaultQuorum = 2

// Config is the parsed contents of a configuration file.
type Config struct {
	Endpoints      map[transport.Group]transport.Endpoint
	Clients        transport.Endpoint
	Quorum         int
	QuorumExplicit bool
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %q", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads whitespace-delimited "role host port" lines (and the
// "quorum N" extension line) from r.
func Parse(r io.Reader) (Config, error) {
	cfg := Config{
		Endpoints: make(map[transport.Group]transport.Endpoint),
		Quorum:    DefaultQuorum,
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		if strings.EqualFold(fields[0], "quorum") {
			if len(fields) != 2 {
				return Config{}, errors.Errorf("config line %d: %q: want \"quorum N\"", lineNo, line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return Config{}, errors.Errorf("config line %d: invalid quorum %q", lineNo, fields[1])
			}
			cfg.Quorum = n
			cfg.QuorumExplicit = true
			continue
		}

		if len(fields) != 3 {
			return Config{}, errors.Errorf("config line %d: %q: want \"role host port\"", lineNo, line)
		}
		role, host, portStr := strings.ToLower(fields[0]), fields[1], fields[2]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config line %d: invalid port %q", lineNo, portStr)
		}
		ep := transport.Endpoint{Host: host, Port: port}

		switch role {
		case "clients":
			cfg.Clients = ep
		case "proposers":
			cfg.Endpoints[transport.Proposers] = ep
		case "acceptors":
			cfg.Endpoints[transport.Acceptors] = ep
		case "learners":
			cfg.Endpoints[transport.Learners] = ep
		default:
			return Config{}, errors.Errorf("config line %d: unknown role %q", lineNo, role)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	for _, want := range []transport.Group{transport.Proposers, transport.Acceptors, transport.Learners} {
		if _, ok := cfg.Endpoints[want]; !ok {
			return Config{}, errors.Errorf("config missing required role %q", want)
		}
	}
	return cfg, nil
}
