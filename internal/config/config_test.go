package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kelvinbranch/paxcast/internal/transport"
)

func TestParseReferenceConfig(t *testing.T) {
	const body = `
clients   230.0.0.1 8000
proposers 230.0.0.1 8001
acceptors 230.0.0.1 8002
learners  230.0.0.1 8003
quorum 2
`
	cfg, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Quorum)
	require.True(t, cfg.QuorumExplicit)
	require.Equal(t, transport.Endpoint{Host: "230.0.0.1", Port: 8002}, cfg.Endpoints[transport.Acceptors])
	require.Equal(t, transport.Endpoint{Host: "230.0.0.1", Port: 8000}, cfg.Clients)
}

func TestParseDefaultsQuorum(t *testing.T) {
	const body = `
proposers 230.0.0.1 8001
acceptors 230.0.0.1 8002
learners  230.0.0.1 8003
`
	cfg, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, DefaultQuorum, cfg.Quorum)
	require.False(t, cfg.QuorumExplicit)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	_, err := Parse(strings.NewReader("replicas 230.0.0.1 8002\n"))
	require.Error(t, err)
}

func TestParseRejectsMissingRole(t *testing.T) {
	_, err := Parse(strings.NewReader("proposers 230.0.0.1 8001\n"))
	require.Error(t, err)
}
