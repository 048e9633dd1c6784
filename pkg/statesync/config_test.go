package statesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("default valid", func(t *testing.T) {
		config := DefaultConfig()
		assert.NoError(t, config.Validate())
	})

	t.Run("missing max sessions", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxSyncSessions = 0
		assert.Error(t, config.Validate())
	})

	t.Run("branching too small", func(t *testing.T) {
		config := DefaultConfig()
		config.MerkleBranching = 1
		assert.Error(t, config.Validate())
	})

	t.Run("unsupported policy", func(t *testing.T) {
		config := DefaultConfig()
		config.DefaultPolicy = "newest"
		assert.Error(t, config.Validate())
	})
}
