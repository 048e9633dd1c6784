package gossip

import (
	"sort"
	"sync"
	"time"
)

// digestEntry summarises one buffered message for anti-entropy exchange.
type digestEntry struct {
	MessageID string    `codec:"message_id"`
	Timestamp time.Time `codec:"timestamp"`
}

type digest []digestEntry

// messageBuffer holds received and pending messages.
//
// The buffer exclusively belongs to the engine. It remembers the IDs of
// every message it has accepted (until garbage collected) for duplicate
// suppression, keeps the messages themselves for digest-driven repair,
// and queues pending messages for the next round.
type messageBuffer struct {
	// seen maps accepted message IDs to when they were recorded. An entry
	// may outlive its message so duplicates are still suppressed after
	// eviction.
	seen map[string]time.Time

	messages map[string]*Message

	// pending is the queue of messages to disseminate next round.
	pending []*Message

	capacity int

	// mu protects the above fields.
	mu sync.Mutex
}

func newMessageBuffer(capacity int) *messageBuffer {
	return &messageBuffer{
		seen:     make(map[string]time.Time),
		messages: make(map[string]*Message),
		capacity: capacity,
	}
}

// Seen returns whether the message ID has been recorded.
func (b *messageBuffer) Seen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.seen[id]
	return ok
}

// Record stores the message and marks it as seen. Returns false if the
// message was already recorded.
//
// If the buffer is over capacity the oldest message is evicted.
func (b *messageBuffer) Record(m *Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[m.ID]; ok {
		return false
	}
	b.seen[m.ID] = time.Now()
	b.messages[m.ID] = m

	for len(b.messages) > b.capacity {
		b.evictOldestLocked()
	}
	return true
}

// Enqueue queues the message for dissemination in the next round.
func (b *messageBuffer) Enqueue(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, m)
}

// TakePending drains the pending queue, highest priority first.
func (b *messageBuffer) TakePending() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pending
	b.pending = nil

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority > pending[j].Priority
	})
	return pending
}

func (b *messageBuffer) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func (b *messageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.messages)
}

// Messages returns a snapshot of the buffered messages ordered by
// creation time.
func (b *messageBuffer) Messages() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	messages := make([]*Message, 0, len(b.messages))
	for _, m := range b.messages {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}

// Get returns the buffered message with the given ID.
func (b *messageBuffer) Get(id string) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.messages[id]
	return m, ok
}

// Digest summarises the buffered messages as {id, timestamp} pairs.
func (b *messageBuffer) Digest() digest {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := make(digest, 0, len(b.messages))
	for id, m := range b.messages {
		d = append(d, digestEntry{
			MessageID: id,
			Timestamp: m.CreatedAt,
		})
	}
	return d
}

// MissingFrom returns the buffered messages absent from the given remote
// digest.
func (b *messageBuffer) MissingFrom(remote digest) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	remoteIDs := make(map[string]struct{}, len(remote))
	for _, entry := range remote {
		remoteIDs[entry.MessageID] = struct{}{}
	}

	var missing []*Message
	for id, m := range b.messages {
		if _, ok := remoteIDs[id]; !ok {
			missing = append(missing, m)
		}
	}
	return missing
}

// UnknownIn returns the IDs in the remote digest this buffer has not
// seen.
func (b *messageBuffer) UnknownIn(remote digest) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var unknown []string
	for _, entry := range remote {
		if _, ok := b.seen[entry.MessageID]; !ok {
			unknown = append(unknown, entry.MessageID)
		}
	}
	return unknown
}

// GarbageCollect drops messages older than maxAge or past their expiry,
// and forgets seen IDs older than maxAge. Returns the number of dropped
// messages.
func (b *messageBuffer) GarbageCollect(maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, m := range b.messages {
		if now.Sub(m.CreatedAt) > maxAge || m.Expired(now) {
			delete(b.messages, id)
			removed++
		}
	}
	for id, seenAt := range b.seen {
		if now.Sub(seenAt) > maxAge {
			delete(b.seen, id)
		}
	}
	return removed
}

func (b *messageBuffer) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, m := range b.messages {
		if oldestID == "" || m.CreatedAt.Before(oldest) {
			oldestID = id
			oldest = m.CreatedAt
		}
	}
	if oldestID != "" {
		delete(b.messages, oldestID)
	}
}
