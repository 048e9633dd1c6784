package statesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespo92/rhizome/pkg/log"
)

func TestStore_SyncSessions(t *testing.T) {
	t.Run("session limit", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxSyncSessions = 2
		store := NewStore(
			"node-1", config, nil, NewNopWatcher(), log.NewNopLogger(),
		)

		_, err := store.StartSyncSession("peer-1")
		require.NoError(t, err)
		_, err = store.StartSyncSession("peer-2")
		require.NoError(t, err)

		// Fails fast past the limit.
		_, err = store.StartSyncSession("peer-3")
		assert.Error(t, err)

		assert.Equal(t, 2, len(store.Sessions()))
	})

	t.Run("equal roots complete immediately", func(t *testing.T) {
		storeA := testStore("node-a", nil)
		storeB := testStore("node-b", nil)

		_, err := storeA.Set("k", 1, nil)
		require.NoError(t, err)
		require.True(t, storeB.ApplyDelta(&Delta{
			ID:        newDeltaID(),
			Key:       "k",
			Op:        OpSet,
			Value:     1,
			Version:   storeA.Version(),
			Origin:    "node-a",
			Timestamp: time.Now(),
		}))
		require.Equal(t, storeA.Root(), storeB.Root())

		session, err := storeA.StartSyncSession("node-b")
		require.NoError(t, err)

		pending, err := storeA.ReconcileSession(
			session.ID, storeB.Root(), storeB.Leaves(),
		)
		require.NoError(t, err)
		assert.Equal(t, 0, len(pending))
		assert.Equal(t, 0, len(storeA.Sessions()))
	})

	t.Run("diverging stores reconcile", func(t *testing.T) {
		storeA := testStore("node-a", nil)
		storeB := testStore("node-b", nil)

		_, err := storeA.Set("only-a", 1, nil)
		require.NoError(t, err)
		_, err = storeB.Set("only-b", 2, nil)
		require.NoError(t, err)

		session, err := storeA.StartSyncSession("node-b")
		require.NoError(t, err)

		pending, err := storeA.ReconcileSession(
			session.ID, storeB.Root(), storeB.Leaves(),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"only-a", "only-b"}, pending)

		// Repair node-b with the keys it is missing.
		deltas, err := storeA.SessionDeltas(session.ID, []string{"only-a"})
		require.NoError(t, err)
		require.Equal(t, 1, len(deltas))
		assert.Equal(t, OpSet, deltas[0].Op)
		assert.Equal(t, "node-a", deltas[0].Origin)
		assert.True(t, storeB.ApplyDelta(deltas[0]))

		// Apply node-b's repair locally through the session.
		remote, err := storeB.StartSyncSession("node-a")
		require.NoError(t, err)
		repairs, err := storeB.SessionDeltas(remote.ID, []string{"only-b"})
		require.NoError(t, err)
		for _, d := range repairs {
			applied, err := storeA.ApplySessionDelta(session.ID, d)
			require.NoError(t, err)
			assert.True(t, applied)
		}

		completed, err := storeA.CompleteSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, SessionCompleted, completed.State)
		assert.Equal(t, 1, completed.OutboundDeltas)
		assert.Equal(t, 1, completed.InboundDeltas)

		assert.Equal(t, storeA.Root(), storeB.Root())
	})

	t.Run("tombstones replicate through sessions", func(t *testing.T) {
		storeA := testStore("node-a", nil)
		storeB := testStore("node-b", nil)

		_, err := storeA.Set("k", 1, nil)
		require.NoError(t, err)
		require.True(t, storeA.Delete("k"))

		session, err := storeA.StartSyncSession("node-b")
		require.NoError(t, err)
		pending, err := storeA.ReconcileSession(
			session.ID, storeB.Root(), storeB.Leaves(),
		)
		require.NoError(t, err)
		require.Equal(t, []string{"k"}, pending)

		deltas, err := storeA.SessionDeltas(session.ID, pending)
		require.NoError(t, err)
		require.Equal(t, 1, len(deltas))
		assert.Equal(t, OpDelete, deltas[0].Op)

		assert.True(t, storeB.ApplyDelta(deltas[0]))
		_, ok := storeB.Get("k")
		assert.False(t, ok)
		assert.Equal(t, storeA.Root(), storeB.Root())
	})

	t.Run("unknown session", func(t *testing.T) {
		store := testStore("node-1", nil)

		_, err := store.ReconcileSession("missing", nil, nil)
		assert.Error(t, err)
		_, err = store.SessionDeltas("missing", []string{"k"})
		assert.Error(t, err)
		_, err = store.CompleteSession("missing")
		assert.Error(t, err)
	})

	t.Run("reaper expires inactive sessions", func(t *testing.T) {
		config := DefaultConfig()
		config.SessionTimeout = time.Millisecond * 10
		store := NewStore(
			"node-1", config, nil, NewNopWatcher(), log.NewNopLogger(),
		)
		store.Start()
		defer store.Stop()

		_, err := store.StartSyncSession("peer-1")
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return len(store.Sessions()) == 0
		}, time.Second, time.Millisecond*5)
	})
}
