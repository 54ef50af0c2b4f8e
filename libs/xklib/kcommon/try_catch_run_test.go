package kcommon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

func TestTryCatchRunKerror(t *testing.T) {
	ke := TryCatchRun(context.Background(), func() {
		panic(kerror.Create("NodeNotFound", "node not in ring").WithErrorCode(kerror.EC_INVALID_PARAMETER))
	})
	assert.NotNil(t, ke)
	assert.Equal(t, "NodeNotFound", ke.Type)
	assert.Equal(t, 400, ke.GetHttpErrorCode())
}

func TestTryCatchRunPlainError(t *testing.T) {
	ke := TryCatchRun(context.Background(), func() {
		panic(errors.New("boom"))
	})
	assert.NotNil(t, ke)
	assert.Equal(t, "UnknownError", ke.Type)
	assert.NotEmpty(t, ke.Stack)
}

func TestTryCatchRunRuntimePanic(t *testing.T) {
	div := func(x, y int) int { return x / y }
	ke := TryCatchRun(context.Background(), func() {
		div(1, 0)
	})
	assert.NotNil(t, ke)
	assert.Contains(t, ke.CausedBy.Error(), "divide by zero")
}

func TestTryCatchRunNoPanic(t *testing.T) {
	ke := TryCatchRun(context.Background(), func() {})
	assert.Nil(t, ke)
}
