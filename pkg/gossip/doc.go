// Package gossip implements epidemic message dissemination.
//
// Each node maintains a peer set and a bounded message buffer. A periodic
// round timer selects up to 'fanout' peers and exchanges messages with
// them using the configured strategy (push, pull, push-pull or bimodal).
// An independent anti-entropy timer reconciles message buffers with a
// random peer via digest exchange to repair updates the rounds missed.
//
// Messages are flooded with a TTL bounding the number of hops, and
// duplicate, expired and invalidly signed messages are dropped locally
// and surfaced only through the watcher and metrics.
package gossip
