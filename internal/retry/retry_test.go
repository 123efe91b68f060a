package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy keeps test runtime negligible.
func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesMarkedErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return Mark(errors.New("throttled"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnTerminalError(t *testing.T) {
	terminal := errors.New("bad credentials")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	transient := errors.New("unavailable")
	calls := 0
	err := Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return Mark(transient)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, transient)
	assert.True(t, IsRetryable(err), "exhaustion error should keep the retryable mark")
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(context.Context) error {
		return Mark(errors.New("transient"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_ZeroPolicyFallsBackToDefault(t *testing.T) {
	// A zero policy must not loop forever or panic.
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMark_NilStaysNil(t *testing.T) {
	assert.NoError(t, Mark(nil))
}

func TestIsRetryable_WrappedChain(t *testing.T) {
	base := errors.New("boom")
	wrapped := Mark(base)
	rewrapped := errors.Join(errors.New("outer"), wrapped)

	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsRetryable(rewrapped))
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
}

func TestDelayFor_CappedAtMax(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	d := delayFor(p, 9)
	assert.LessOrEqual(t, d, p.MaxDelay+400*time.Millisecond)
}
