package statesync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vespo92/rhizome/pkg/clock"
)

func testLeaf(key string, value interface{}) []byte {
	version := clock.New()
	version.Increment("node-1")
	return leafHash(key, value, version, false)
}

func TestMerkleTree_Root(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		tree := newMerkleTree(4)
		assert.Nil(t, tree.Root())
	})

	t.Run("equal state equal root", func(t *testing.T) {
		tree1 := newMerkleTree(4)
		tree2 := newMerkleTree(4)

		// Insertion order must not matter.
		tree1.Update("a", testLeaf("a", 1))
		tree1.Update("b", testLeaf("b", 2))
		tree2.Update("b", testLeaf("b", 2))
		tree2.Update("a", testLeaf("a", 1))

		assert.Equal(t, tree1.Root(), tree2.Root())
	})

	t.Run("divergence changes root", func(t *testing.T) {
		tree1 := newMerkleTree(4)
		tree2 := newMerkleTree(4)

		tree1.Update("a", testLeaf("a", 1))
		tree2.Update("a", testLeaf("a", 2))

		assert.NotEqual(t, tree1.Root(), tree2.Root())
	})

	t.Run("update and remove invalidate root", func(t *testing.T) {
		tree := newMerkleTree(4)
		tree.Update("a", testLeaf("a", 1))
		root := tree.Root()

		tree.Update("a", testLeaf("a", 2))
		assert.NotEqual(t, root, tree.Root())

		tree.Remove("a")
		assert.Nil(t, tree.Root())
	})

	t.Run("multiple levels", func(t *testing.T) {
		// More leaves than the branching factor forces internal levels.
		tree1 := newMerkleTree(2)
		tree2 := newMerkleTree(2)
		for _, key := range []string{"a", "b", "c", "d", "e"} {
			tree1.Update(key, testLeaf(key, key))
			tree2.Update(key, testLeaf(key, key))
		}
		assert.Equal(t, tree1.Root(), tree2.Root())

		tree2.Update("e", testLeaf("e", "changed"))
		assert.NotEqual(t, tree1.Root(), tree2.Root())
	})
}

func TestMerkleTree_Diff(t *testing.T) {
	local := newMerkleTree(4)
	local.Update("same", testLeaf("same", 1))
	local.Update("changed", testLeaf("changed", 1))
	local.Update("local-only", testLeaf("local-only", 1))

	remote := map[string][]byte{
		"same":        testLeaf("same", 1),
		"changed":     testLeaf("changed", 2),
		"remote-only": testLeaf("remote-only", 1),
	}

	assert.Equal(
		t,
		[]string{"changed", "local-only", "remote-only"},
		local.Diff(remote),
	)
}

func TestLeafHash(t *testing.T) {
	version := clock.New()
	version.Increment("node-1")

	// Wall-clock timestamps are excluded so replicas that applied the
	// same write hash equal.
	later := version.Clone()
	later.Increment("node-1")

	assert.Equal(
		t,
		leafHash("k", 1, version, false),
		leafHash("k", 1, version.Clone(), false),
	)
	assert.NotEqual(
		t,
		leafHash("k", 1, version, false),
		leafHash("k", 1, later, false),
	)
	assert.NotEqual(
		t,
		leafHash("k", 1, version, false),
		leafHash("k", 1, version, true),
	)
}
