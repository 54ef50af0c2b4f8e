package kcommon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomizeValueByRatio(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		v := RandomizeValueByRatio(ctx, 100, 0.1)
		assert.GreaterOrEqual(t, v, 90)
		assert.Less(t, v, 110)
	}
	assert.Equal(t, 0, RandomInt(ctx, 0))
}
