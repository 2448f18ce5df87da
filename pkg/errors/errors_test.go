package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(DuplicateRecord, "record already written")

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, DuplicateRecord, e.Code())
	assert.Equal(t, "record already written", err.Error())
}

func TestWrap(t *testing.T) {
	t.Run("wraps and preserves chain", func(t *testing.T) {
		inner := fmt.Errorf("connect: refused")
		err := Wrap(inner, TransientCapability, "judge call failed")

		assert.Equal(t, TransientCapability, Code(err))
		assert.ErrorIs(t, err, inner)
		assert.Contains(t, err.Error(), "judge call failed: connect: refused")
	})

	t.Run("nil in nil out", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, StageFailed, "ignored"))
	})
}

func TestWithFields(t *testing.T) {
	err := WithFields(
		New(DimensionMismatch, "query vector has wrong dimension"),
		Fields{"corpus": "historical-loans", "want": 8, "got": 5},
	)

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, DimensionMismatch, e.Code())
	assert.Equal(t, 8, e.Fields()["want"])
	assert.Contains(t, err.Error(), "corpus=historical-loans")
}

func TestWithFieldsMerges(t *testing.T) {
	err := WithFields(New(StageFailed, "stage failed"), Fields{"stage": "decision"})
	err = WithFields(err, Fields{"revision": 1})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, "decision", e.Fields()["stage"])
	assert.Equal(t, 1, e.Fields()["revision"])
}

func TestIsMatchesOnCode(t *testing.T) {
	a := New(DuplicateRecord, "one")
	b := New(DuplicateRecord, "two")
	c := New(MissingDependency, "three")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestCode(t *testing.T) {
	assert.Equal(t, Unknown, Code(nil))
	assert.Equal(t, Unknown, Code(fmt.Errorf("plain")))
	assert.Equal(t, Canceled, Code(New(Canceled, "stop")))
	assert.Equal(t, Timeout, Code(Wrap(fmt.Errorf("deadline"), Timeout, "slow")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(TransientCapability, "rate limited")))
	assert.True(t, IsTransient(New(Timeout, "deadline")))
	assert.False(t, IsTransient(New(DuplicateRecord, "contract")))
	assert.False(t, IsTransient(fmt.Errorf("plain")))
	assert.False(t, IsTransient(nil))
}

func TestCheckContext(t *testing.T) {
	t.Run("live context passes", func(t *testing.T) {
		assert.NoError(t, CheckContext(context.Background(), "query"))
	})

	t.Run("canceled context reports Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := CheckContext(ctx, "query")
		require.Error(t, err)
		assert.Equal(t, Canceled, Code(err))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
