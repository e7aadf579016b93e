package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsFirstSuccess(t *testing.T) {
	var called []string
	step := func(name string, ok bool) Step[string] {
		return Step[string]{Name: name, Run: func(context.Context) Result[string] {
			called = append(called, name)
			if ok {
				return Ok(name)
			}
			return Err[string](Failf(UpstreamRejected, "%s failed", name))
		}}
	}

	r := Run(context.Background(), nil, step("api", false), step("ui", true), step("never", true))
	require.True(t, r.OK())
	assert.Equal(t, "ui", r.Value)
	assert.Equal(t, []string{"api", "ui"}, called)
}

func TestRunReturnsLastFailure(t *testing.T) {
	r := Run(context.Background(), nil,
		Step[int]{Name: "a", Run: func(context.Context) Result[int] { return Err[int](Failf(UpstreamRejected, "a")) }},
		Step[int]{Name: "b", Run: func(context.Context) Result[int] { return Err[int](Failf(ResourceNotFound, "b")) }},
	)
	require.False(t, r.OK())
	assert.Equal(t, ResourceNotFound, r.Failure.Kind)
}

func TestRunWithoutSteps(t *testing.T) {
	r := Run[int](context.Background(), nil)
	require.False(t, r.OK())
	assert.Equal(t, Unexpected, r.Failure.Kind)
}

func TestGuardConvertsPanic(t *testing.T) {
	r := Guard(context.Background(), Step[int]{Name: "boom", Run: func(context.Context) Result[int] {
		panic("nil element")
	}})
	require.False(t, r.OK())
	assert.Equal(t, Unexpected, r.Failure.Kind)
	assert.Contains(t, r.Failure.Message, "boom panicked")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	r := Run(ctx, nil, Step[int]{Name: "a", Run: func(context.Context) Result[int] {
		calls++
		return Ok(1)
	}})
	assert.False(t, r.OK())
	assert.Zero(t, calls)
}

func TestFailureUnwrapAndKind(t *testing.T) {
	base := errors.New("dial tcp: refused")
	f := Fail(UpstreamRejected, base)
	wrapped := fmt.Errorf("delete: %w", f)

	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, UpstreamRejected, KindOf(wrapped))
	assert.Equal(t, Unexpected, KindOf(base))
	assert.Same(t, f, Fail(Unexpected, wrapped))

	routine := &Failure{Kind: ResourceNotFound, Routine: true}
	assert.True(t, IsRoutine(fmt.Errorf("x: %w", routine)))
	assert.False(t, IsRoutine(f))
}

func TestUnpack(t *testing.T) {
	v, err := Ok(3).Unpack()
	assert.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = Err[int](nil).Unpack()
	assert.Error(t, err)
}
