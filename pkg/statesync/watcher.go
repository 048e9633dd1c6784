package statesync

// Watcher receives notifications of store activity.
//
// Implementations must not block and must not call back into the store.
type Watcher interface {
	// OnSet notifies that a local write created or updated the entry.
	OnSet(e *Entry)

	// OnDelete notifies that a local delete tombstoned the entry.
	OnDelete(e *Entry)

	// OnMerge notifies that a local merge updated the entry.
	OnMerge(e *Entry)

	// OnDeltaApplied notifies that an inbound delta was applied.
	OnDeltaApplied(d *Delta)

	// OnConflict notifies that an inbound delta was concurrent with the
	// local entry. For the custom policy the entry is left untouched and
	// resolution is up to the application.
	OnConflict(local *Entry, d *Delta, policy ConflictPolicy, applied bool)

	OnSessionStarted(s *Session)
	OnSessionCompleted(s *Session)

	// OnGarbageCollected notifies that a collection pass removed the
	// given number of entries.
	OnGarbageCollected(removed int)
}

// NopWatcher discards all notifications. Embed it to implement only a
// subset of Watcher.
type NopWatcher struct {
}

func NewNopWatcher() *NopWatcher {
	return &NopWatcher{}
}

func (w *NopWatcher) OnSet(_ *Entry) {}

func (w *NopWatcher) OnDelete(_ *Entry) {}

func (w *NopWatcher) OnMerge(_ *Entry) {}

func (w *NopWatcher) OnDeltaApplied(_ *Delta) {}

func (w *NopWatcher) OnConflict(_ *Entry, _ *Delta, _ ConflictPolicy, _ bool) {}

func (w *NopWatcher) OnSessionStarted(_ *Session) {}

func (w *NopWatcher) OnSessionCompleted(_ *Session) {}

func (w *NopWatcher) OnGarbageCollected(_ int) {}

var _ Watcher = &NopWatcher{}
