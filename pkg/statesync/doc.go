// Package statesync implements a versioned key-value store replicated by
// delta dissemination.
//
// Local writes produce deltas handed to a bound broadcaster (the gossip
// engine); inbound deltas are applied with causal ordering from version
// vectors and conflict resolution when writes are concurrent. A Merkle
// tree over the key space lets peers detect divergence by comparing a
// single root hash during anti-entropy.
package statesync
