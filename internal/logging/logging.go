// Package logging builds the structured logger every paxcast role logs
// through, adapted from the go-kit/log usage in adymitruk-caspaxos.
package logging

import (
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// New returns a logfmt logger tagged with role and id, with debug-level
// filtering controlled by the PAXCAST_DEBUG environment variable (any
// non-empty value enables debug output). Every per-message protocol log
// line goes through level.Debug; lifecycle and fatal events use
// level.Info/level.Error.
func New(role string, id int) log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "role", role, "id", id)

	min := level.AllowInfo()
	if os.Getenv("PAXCAST_DEBUG") != "" {
		min = level.AllowAll()
	}
	return level.NewFilter(base, min)
}
