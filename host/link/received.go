package link

import (
	"time"

	"github.com/reticulum/hostlink/rpc"
)

// Received is one entry on the received-packet queue (spec §4.5 step 6):
// the parsed reply, or nil if the codec failed to parse the body — the
// dispatch stage must never crash on a malformed body. A reply the codec
// accepts is not checked further for missing fields.
type Received struct {
	Timestamp time.Time
	Source    byte
	Dest      byte
	Reply     rpc.Reply
}
