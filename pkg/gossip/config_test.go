package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("default valid", func(t *testing.T) {
		config := DefaultConfig()
		assert.NoError(t, config.Validate())
	})

	t.Run("unsupported strategy", func(t *testing.T) {
		config := DefaultConfig()
		config.Strategy = "broadcast"
		assert.Error(t, config.Validate())
	})

	t.Run("missing fanout", func(t *testing.T) {
		config := DefaultConfig()
		config.Fanout = 0
		assert.Error(t, config.Validate())
	})

	t.Run("bimodal requires multicast size", func(t *testing.T) {
		config := DefaultConfig()
		config.Strategy = StrategyBimodal
		config.BimodalMulticastSize = 0
		assert.Error(t, config.Validate())
	})
}
