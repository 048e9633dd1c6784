package statesync

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/vespo92/rhizome/pkg/clock"
	"github.com/vespo92/rhizome/pkg/log"
)

// Broadcaster propagates locally produced deltas to peers. The store is
// transport agnostic; the node layer binds it to the gossip engine.
type Broadcaster interface {
	BroadcastDelta(d *Delta) error
}

// Store is a replicated key-value store.
//
// Local writes increment the store's vector clock, update the Merkle
// tree and hand a delta to the broadcaster. Inbound deltas are applied
// with causal ordering; concurrent writes are resolved by the entry's
// conflict policy.
//
// All read-modify-write runs under a single coarse mutex, which also
// makes clock increments atomic with respect to concurrent writes.
type Store struct {
	nodeID string

	config Config

	entries map[string]*Entry

	// version is the store's vector clock. Incremented on local writes
	// and merged with the version of every inbound delta.
	version clock.Vector

	tree *merkleTree

	sessions *sessionSet

	broadcaster Broadcaster
	watcher     Watcher
	metrics     *Metrics

	logger log.Logger

	started    *atomic.Bool
	closed     *atomic.Bool
	shutdownCh chan struct{}

	// mu protects entries, version and tree.
	mu sync.Mutex
}

// NewStore creates a state store for the given node. broadcaster may be
// nil for a store that never propagates writes.
func NewStore(
	nodeID string,
	config Config,
	broadcaster Broadcaster,
	watcher Watcher,
	logger log.Logger,
) *Store {
	return &Store{
		nodeID:      nodeID,
		config:      config,
		entries:     make(map[string]*Entry),
		version:     clock.New(),
		tree:        newMerkleTree(config.MerkleBranching),
		sessions:    newSessionSet(config.MaxSyncSessions),
		broadcaster: broadcaster,
		watcher:     watcher,
		metrics:     newMetrics(),
		logger:      logger.WithSubsystem("sync"),
		started:     atomic.NewBool(false),
		closed:      atomic.NewBool(false),
		shutdownCh:  make(chan struct{}),
	}
}

// Start begins the session reaper.
func (s *Store) Start() {
	if !s.started.CompareAndSwap(false, true) {
		// Already started.
		return
	}

	go s.reapSessions()
}

// Stop cancels the session reaper.
func (s *Store) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		// Already stopped.
		return
	}

	close(s.shutdownCh)
}

// NodeID returns the local node ID.
func (s *Store) NodeID() string {
	return s.nodeID
}

// Version returns a snapshot of the store's vector clock.
func (s *Store) Version() clock.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version.Clone()
}

// Set writes the value for the key, creating or updating the entry, and
// propagates a delta.
func (s *Store) Set(key string, value interface{}, opts *SetOptions) (*Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("missing key")
	}

	valueType := ""
	policy := s.config.DefaultPolicy
	var ttl time.Duration
	if opts != nil {
		valueType = opts.Type
		if opts.Policy != "" {
			policy = opts.Policy
		}
		ttl = opts.TTL
	}

	now := time.Now()

	s.mu.Lock()

	s.version.Increment(s.nodeID)
	version := s.version.Clone()

	op := OpSet
	entry, ok := s.entries[key]
	if ok && !entry.Deleted && !entry.expired(now) {
		op = OpUpdate
	} else {
		if ok {
			// Reviving a tombstoned or expired entry.
			s.dropLocked(key, entry)
		}
		entry = &Entry{
			Key:       key,
			CreatedAt: now,
		}
		s.entries[key] = entry
		s.metrics.Entries.Inc()
	}

	entry.Type = valueType
	entry.Value = value
	entry.Version = version
	entry.Origin = s.nodeID
	entry.Policy = policy
	entry.UpdatedAt = now
	entry.Deleted = false
	entry.TTL = ttl

	s.tree.Update(key, leafHash(key, value, version, false))

	result := entry.clone()

	s.mu.Unlock()

	s.emit(&Delta{
		ID:        newDeltaID(),
		Key:       key,
		Op:        op,
		Value:     value,
		Version:   version,
		Origin:    s.nodeID,
		Timestamp: now,
	})
	s.watcher.OnSet(result)

	return result, nil
}

// Get returns the value for the key. Absent if the key is missing,
// tombstoned or TTL-expired. Expired entries are physically dropped.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.Deleted {
		return nil, false
	}
	if entry.expired(time.Now()) {
		s.dropLocked(key, entry)
		return nil, false
	}
	return entry.Value, true
}

// Delete tombstones the key and propagates a delete delta. Returns
// false if the key is missing, already tombstoned or expired.
//
// The entry is not physically removed so the deletion itself
// replicates; garbage collection purges the tombstone after the
// retention window.
func (s *Store) Delete(key string) bool {
	now := time.Now()

	s.mu.Lock()

	entry, ok := s.entries[key]
	if !ok || entry.Deleted {
		s.mu.Unlock()
		return false
	}
	if entry.expired(now) {
		s.dropLocked(key, entry)
		s.mu.Unlock()
		return false
	}

	s.version.Increment(s.nodeID)
	version := s.version.Clone()

	entry.Value = nil
	entry.Version = version
	entry.Origin = s.nodeID
	entry.UpdatedAt = now
	entry.Deleted = true

	s.tree.Update(key, leafHash(key, nil, version, true))

	s.metrics.Entries.Dec()
	s.metrics.Tombstones.Inc()

	result := entry.clone()

	s.mu.Unlock()

	s.emit(&Delta{
		ID:        newDeltaID(),
		Key:       key,
		Op:        OpDelete,
		Version:   version,
		Origin:    s.nodeID,
		Timestamp: now,
	})
	s.watcher.OnDelete(result)

	return true
}

// Merge shallow-merges the partial value into the entry's current
// object value and propagates a merge delta. Fails if the key is
// missing, tombstoned, expired or not an object.
func (s *Store) Merge(key string, partial map[string]interface{}) (*Entry, error) {
	now := time.Now()

	s.mu.Lock()

	entry, ok := s.entries[key]
	if !ok || entry.Deleted {
		s.mu.Unlock()
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if entry.expired(now) {
		s.dropLocked(key, entry)
		s.mu.Unlock()
		return nil, fmt.Errorf("key not found: %s", key)
	}

	value, ok := entry.Value.(map[string]interface{})
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("merge on non-object key: %s", key)
	}

	s.version.Increment(s.nodeID)
	version := s.version.Clone()

	merged := mergeValues(value, partial)
	entry.Value = merged
	entry.Version = version
	entry.Origin = s.nodeID
	entry.UpdatedAt = now

	s.tree.Update(key, leafHash(key, merged, version, false))

	result := entry.clone()

	s.mu.Unlock()

	s.emit(&Delta{
		ID:        newDeltaID(),
		Key:       key,
		Op:        OpMerge,
		Value:     partial,
		Version:   version,
		Origin:    s.nodeID,
		Timestamp: now,
	})
	s.watcher.OnMerge(result)

	return result, nil
}

// ApplyDelta applies an inbound delta. Returns whether the local value
// changed.
//
// The delta applies directly when the key is unknown locally or the
// local version happens before the delta's. Concurrent versions run the
// entry's conflict policy. In every case the incoming version vector is
// merged into local causal history.
func (s *Store) ApplyDelta(d *Delta) bool {
	s.mu.Lock()

	s.version.Merge(d.Version)

	entry, ok := s.entries[d.Key]
	if !ok {
		s.applyLocked(nil, d)
		s.mu.Unlock()

		s.metrics.DeltasApplied.Inc()
		s.watcher.OnDeltaApplied(d)
		return true
	}

	relation := entry.Version.Compare(d.Version)
	switch relation {
	case clock.Before:
		// The local write causally precedes the delta.
		s.applyLocked(entry, d)
		s.mu.Unlock()

		s.metrics.DeltasApplied.Inc()
		s.watcher.OnDeltaApplied(d)
		return true

	case clock.Concurrent:
		policy := entry.Policy
		applied := s.resolveConflictLocked(entry, d, policy)
		local := entry.clone()
		s.mu.Unlock()

		s.metrics.Conflicts.With(map[string]string{
			"policy": string(policy),
		}).Inc()
		s.watcher.OnConflict(local, d, policy, applied)
		if applied {
			s.metrics.DeltasApplied.Inc()
			s.watcher.OnDeltaApplied(d)
		} else {
			s.metrics.DeltasRejected.Inc()
		}
		return applied

	default:
		// Stale or duplicate delta; causal history was still merged.
		entry.Version.Merge(d.Version)
		s.mu.Unlock()

		s.metrics.DeltasRejected.Inc()
		return false
	}
}

// resolveConflictLocked resolves a concurrent delta per policy. Returns
// whether the delta's value was applied.
func (s *Store) resolveConflictLocked(entry *Entry, d *Delta, policy ConflictPolicy) bool {
	switch policy {
	case PolicyLWW:
		if lwwWins(d, entry) {
			s.applyLocked(entry, d)
			return true
		}

	case PolicyMerge:
		if d.Op == OpMerge {
			s.applyLocked(entry, d)
			return true
		}
		if lwwWins(d, entry) {
			s.applyLocked(entry, d)
			return true
		}

	case PolicyPriority:
		if d.Origin < entry.Origin {
			s.applyLocked(entry, d)
			return true
		}

	case PolicyCustom:
		// Resolution is up to the application; the value stays untouched.
	}

	// The losing delta's causal history is still merged.
	entry.Version.Merge(d.Version)
	return false
}

// lwwWins returns whether the delta beats the local entry under
// last-write-wins: larger timestamp, ties broken by the smaller origin
// node ID.
func lwwWins(d *Delta, entry *Entry) bool {
	if d.Timestamp.After(entry.UpdatedAt) {
		return true
	}
	if d.Timestamp.Equal(entry.UpdatedAt) {
		return d.Origin < entry.Origin
	}
	return false
}

// applyLocked applies the delta's operation to the entry. entry is nil
// when the key is unknown locally.
func (s *Store) applyLocked(entry *Entry, d *Delta) {
	if entry == nil {
		entry = &Entry{
			Key:       d.Key,
			Policy:    s.config.DefaultPolicy,
			CreatedAt: d.Timestamp,
		}
		s.entries[d.Key] = entry
		// Counted live; the transition below moves it to the tombstone
		// gauge for a delete.
		s.metrics.Entries.Inc()
	}

	wasDeleted := entry.Deleted

	switch d.Op {
	case OpDelete:
		entry.Value = nil
		entry.Deleted = true

	case OpMerge:
		value, valueOK := entry.Value.(map[string]interface{})
		partial, partialOK := d.Value.(map[string]interface{})
		if valueOK && partialOK {
			entry.Value = mergeValues(value, partial)
		} else {
			entry.Value = d.Value
		}
		entry.Deleted = false

	default:
		entry.Value = d.Value
		entry.Deleted = false
	}

	// The writer's timestamp, not arrival time, so every replica orders
	// the same writes the same way.
	entry.UpdatedAt = d.Timestamp
	entry.Origin = d.Origin
	entry.Version.Merge(d.Version)

	if wasDeleted && !entry.Deleted {
		s.metrics.Tombstones.Dec()
		s.metrics.Entries.Inc()
	} else if !wasDeleted && entry.Deleted {
		s.metrics.Entries.Dec()
		s.metrics.Tombstones.Inc()
	}

	s.tree.Update(
		d.Key, leafHash(d.Key, entry.Value, entry.Version, entry.Deleted),
	)
}

// GarbageCollect purges tombstones past the retention window and
// TTL-expired entries. Returns the number of removed entries.
func (s *Store) GarbageCollect() int {
	now := time.Now()

	s.mu.Lock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Deleted {
			if now.Sub(entry.UpdatedAt) > s.config.TombstoneRetention {
				s.dropLocked(key, entry)
				removed++
			}
			continue
		}
		if entry.expired(now) {
			s.dropLocked(key, entry)
			removed++
		}
	}

	s.mu.Unlock()

	if removed > 0 {
		s.metrics.GCRemoved.Add(float64(removed))
		s.logger.Debug("garbage collected", zap.Int("removed", removed))
	}
	s.watcher.OnGarbageCollected(removed)

	return removed
}

// Snapshot returns all entries including tombstones, sorted by key.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, *entry.clone())
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Root returns the Merkle root over the local key space, or nil when
// the store is empty.
func (s *Store) Root() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tree.Root()
}

// Leaves returns the per-key Merkle leaf hashes.
func (s *Store) Leaves() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tree.Leaves()
}

// StartSyncSession begins a reconciliation session with the peer. Fails
// fast when the session limit is reached.
func (s *Store) StartSyncSession(peerID string) (*Session, error) {
	session, ok := s.sessions.Start(peerID, nil)
	if !ok {
		s.metrics.SessionsRejected.Inc()
		return nil, fmt.Errorf(
			"session limit reached: %d", s.config.MaxSyncSessions,
		)
	}

	s.metrics.Sessions.Inc()
	s.watcher.OnSessionStarted(session)

	s.logger.Debug(
		"sync session started",
		zap.String("session-id", session.ID),
		zap.String("peer-id", peerID),
	)
	return session, nil
}

// ReconcileSession compares the peer's digest with the local state and
// records the diverging keys on the session.
//
// When Merkle comparison is enabled and the roots match the session
// completes immediately with nothing to reconcile. Otherwise the
// diverging keys come from the leaf diff; with Merkle disabled the peer
// sends bare keys (nil hashes), so every known key diverges and the
// session degrades to a full key exchange.
func (s *Store) ReconcileSession(
	sessionID string,
	remoteRoot []byte,
	remoteLeaves map[string][]byte,
) ([]string, error) {
	s.mu.Lock()
	var pending []string
	if s.config.MerkleEnabled && bytes.Equal(s.tree.Root(), remoteRoot) {
		// In sync; nothing to transfer.
	} else {
		pending = s.tree.Diff(remoteLeaves)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		if _, err := s.CompleteSession(sessionID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !s.sessions.SetPending(sessionID, pending) {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return pending, nil
}

// SessionDeltas builds deltas for the given keys to repair the peer,
// recording them as outbound on the session. Unknown keys are skipped.
func (s *Store) SessionDeltas(sessionID string, keys []string) ([]*Delta, error) {
	s.mu.Lock()
	deltas := make([]*Delta, 0, len(keys))
	for _, key := range keys {
		entry, ok := s.entries[key]
		if !ok {
			continue
		}
		op := OpSet
		if entry.Deleted {
			op = OpDelete
		}
		deltas = append(deltas, &Delta{
			ID:        newDeltaID(),
			Key:       key,
			Op:        op,
			Value:     entry.Value,
			Version:   entry.Version.Clone(),
			Origin:    entry.Origin,
			Timestamp: entry.UpdatedAt,
		})
	}
	s.mu.Unlock()

	if !s.sessions.Touch(sessionID, len(deltas), 0) {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return deltas, nil
}

// ApplySessionDelta applies a delta received during a sync session,
// recording it as inbound on the session.
func (s *Store) ApplySessionDelta(sessionID string, d *Delta) (bool, error) {
	if !s.sessions.Touch(sessionID, 0, 1) {
		return false, fmt.Errorf("unknown session: %s", sessionID)
	}
	return s.ApplyDelta(d), nil
}

// CompleteSession finishes the session.
func (s *Store) CompleteSession(sessionID string) (*Session, error) {
	session, ok := s.sessions.Complete(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}

	s.metrics.Sessions.Dec()
	s.watcher.OnSessionCompleted(session)

	s.logger.Debug(
		"sync session completed",
		zap.String("session-id", session.ID),
		zap.String("peer-id", session.PeerID),
		zap.Int("outbound", session.OutboundDeltas),
		zap.Int("inbound", session.InboundDeltas),
	)
	return session, nil
}

// Sessions returns a snapshot of the active sync sessions.
func (s *Store) Sessions() []Session {
	return s.sessions.List()
}

func (s *Store) reapSessions() {
	ticker := time.NewTicker(s.config.SessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, session := range s.sessions.Expire(s.config.SessionTimeout) {
				s.metrics.Sessions.Dec()

				s.logger.Info(
					"sync session expired",
					zap.String("session-id", session.ID),
					zap.String("peer-id", session.PeerID),
				)
			}

		case <-s.shutdownCh:
			return
		}
	}
}

// Metrics returns the store's metric collectors for registration.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

func (s *Store) emit(d *Delta) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.BroadcastDelta(d); err != nil {
		// Peers repair via anti-entropy, so a failed broadcast only
		// delays convergence.
		s.logger.Warn(
			"failed to broadcast delta",
			zap.String("key", d.Key),
			zap.String("op", string(d.Op)),
			zap.Error(err),
		)
	}
}

// dropLocked physically removes the entry and its Merkle leaf.
func (s *Store) dropLocked(key string, entry *Entry) {
	delete(s.entries, key)
	s.tree.Remove(key)

	if entry.Deleted {
		s.metrics.Tombstones.Dec()
	} else {
		s.metrics.Entries.Dec()
	}
}

func mergeValues(
	value map[string]interface{},
	partial map[string]interface{},
) map[string]interface{} {
	merged := make(map[string]interface{}, len(value)+len(partial))
	for k, v := range value {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}
