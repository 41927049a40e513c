package rtpproxy

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying one command's span.
//
// A span covers everything that happens to a single control command:
// read, parse, dispatch, reply. Attach the span ID to the logger so all
// records emitted while handling the command can be correlated.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
