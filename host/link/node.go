// Package link implements the host-side link layer and scheduler: the
// serial endpoint, the dispatch/send/timeout pipeline, and the RTT-adaptive
// retransmit policy (spec §2 items 4–9).
package link

// Node is the explicit (source, dest) pair threaded through every call in
// this package, replacing the original's process-wide "current node"
// mutable global (spec §9 design note). There is no package-level state
// anywhere in link that depends on which node is "current".
type Node struct {
	Source byte
	Dest   byte
}
