package retry

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitterConfig() Config {
	cfg := DefaultConfig()
	cfg.Jitter = false
	return cfg
}

func TestIsRetryable_NetworkKeywords(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())

	retryable := []string{
		"connection reset by peer",
		"request timed out",
		"dial tcp: lookup api.example.com: no such host, dns failure",
		"unexpected EOF",
		"tls handshake failure",
		"socket closed",
		"incomplete response body",
	}
	for _, msg := range retryable {
		assert.True(t, e.IsRetryable(errors.New(msg)), "expected retryable: %q", msg)
	}

	fatal := []string{
		"invalid api key",
		"model not found",
		"unauthorized",
	}
	for _, msg := range fatal {
		assert.False(t, e.IsRetryable(errors.New(msg)), "expected fatal: %q", msg)
	}
}

func TestIsRetryable_RateLimitRespectsConfig(t *testing.T) {
	t.Parallel()

	err := errors.New("429 too many requests")

	assert.True(t, NewEngine(DefaultConfig()).IsRetryable(err))

	cfg := DefaultConfig()
	cfg.RetryOnRateLimit = false
	// "429" and "too many" only count as rate-limit signals.
	assert.False(t, NewEngine(cfg).IsRetryable(errors.New("quota exhausted, too many")))
}

func TestIsRetryable_ServerErrorRespectsConfig(t *testing.T) {
	t.Parallel()

	assert.True(t, NewEngine(DefaultConfig()).IsRetryable(errors.New("upstream returned 503")))

	cfg := DefaultConfig()
	cfg.RetryOnServerError = false
	assert.False(t, NewEngine(cfg).IsRetryable(errors.New("upstream returned 503")))
}

func TestIsRetryable_ProviderTransientCodes(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	for _, code := range []string{"RESOURCE_EXHAUSTED", "unavailable", "deadline_exceeded", "aborted"} {
		assert.True(t, e.IsRetryable(fmt.Errorf("rpc error: %s", code)))
	}
}

func TestIsRetryable_CancelledIsNotRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, NewEngine(DefaultConfig()).IsRetryable(ErrCancelled))
}

func TestComputeDelay_MonotonicWithoutJitter(t *testing.T) {
	t.Parallel()

	e := NewEngine(noJitterConfig())

	prev := 0.0
	for attempt := 0; attempt < 10; attempt++ {
		delay := e.ComputeDelay(attempt, nil)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, 60.0)
		prev = delay
	}
	// Capped at MaxDelay once the exponent overtakes it.
	assert.Equal(t, 60.0, e.ComputeDelay(9, nil))
}

func TestComputeDelay_ExponentialSchedule(t *testing.T) {
	t.Parallel()

	e := NewEngine(noJitterConfig())

	assert.Equal(t, 1.0, e.ComputeDelay(0, nil))
	assert.Equal(t, 2.0, e.ComputeDelay(1, nil))
	assert.Equal(t, 4.0, e.ComputeDelay(2, nil))
}

func TestComputeDelay_JitterStaysWithinBand(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())

	for i := 0; i < 50; i++ {
		delay := e.ComputeDelay(1, nil) // base delay 2.0
		assert.GreaterOrEqual(t, delay, 1.5)
		assert.LessOrEqual(t, delay, 2.5)
	}
}

func TestComputeDelay_APISuggestedDelayWins(t *testing.T) {
	t.Parallel()

	e := NewEngine(noJitterConfig())

	err := errors.New("rate limited. Please try again in 1.57s before retrying")
	assert.InDelta(t, 1.57*1.1, e.ComputeDelay(5, err), 1e-9)

	err = errors.New("Retry after 2.5 s")
	assert.InDelta(t, 2.5*1.1, e.ComputeDelay(0, err), 1e-9)
}

func TestComputeDelay_FloorsAtHundredMillis(t *testing.T) {
	t.Parallel()

	cfg := noJitterConfig()
	cfg.InitialDelay = 0.001
	e := NewEngine(cfg)

	assert.Equal(t, 0.1, e.ComputeDelay(0, nil))
	assert.Equal(t, 0.1, e.ComputeDelay(0, errors.New("try again in 0.01s")))
}

func TestExecute_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	cfg := noJitterConfig()
	cfg.InitialDelay = 0.001
	e := NewEngine(cfg)

	calls := 0
	var retryDelays []float64
	result, err := e.Execute(
		func() (string, error) {
			calls++
			if calls <= 2 {
				return "", errors.New("503 service unavailable")
			}
			return "ok", nil
		},
		func(attempt int, delay float64, message string) {
			retryDelays = append(retryDelays, delay)
			assert.Contains(t, message, "503")
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Len(t, retryDelays, 2)
}

func TestExecute_BackoffScheduleForTransientFailure(t *testing.T) {
	t.Parallel()

	// The 503-twice-then-success scenario: with initialDelay=1.0, base=2.0
	// and jitter off, the observed waits must be 1.0s then 2.0s. Verified
	// against ComputeDelay so the test does not sleep three real seconds.
	e := NewEngine(noJitterConfig())
	err503 := errors.New("503 server error")

	assert.Equal(t, 1.0, e.ComputeDelay(0, err503))
	assert.Equal(t, 2.0, e.ComputeDelay(1, err503))
}

func TestExecute_FatalErrorPropagatesImmediately(t *testing.T) {
	t.Parallel()

	e := NewEngine(noJitterConfig())

	calls := 0
	fatal := errors.New("invalid api key")
	_, err := e.Execute(func() (string, error) {
		calls++
		return "", fatal
	}, nil, nil)

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	cfg := noJitterConfig()
	cfg.MaxRetries = 2
	cfg.InitialDelay = 0.001
	e := NewEngine(cfg)

	calls := 0
	_, err := e.Execute(func() (string, error) {
		calls++
		return "", errors.New("connection refused")
	}, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, calls) // attempts 0..MaxRetries inclusive
}

func TestExecute_CancelledAtLoopHead(t *testing.T) {
	t.Parallel()

	e := NewEngine(noJitterConfig())

	calls := 0
	_, err := e.Execute(
		func() (string, error) {
			calls++
			return "never", nil
		},
		nil,
		func() bool { return true },
	)

	require.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, calls)
}

func TestExecute_CancelDuringBackoffReturnsWithinOneTick(t *testing.T) {
	t.Parallel()

	cfg := noJitterConfig()
	cfg.InitialDelay = 5.0 // would sleep 5s without cooperative cancellation
	e := NewEngine(cfg)

	var cancelled atomic.Bool
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancelled.Store(true)
	}()

	start := time.Now()
	_, err := e.Execute(
		func() (string, error) { return "", errors.New("connection reset") },
		nil,
		cancelled.Load,
	)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrCancelled)
	assert.Less(t, elapsed, time.Second, "cancellation should interrupt the backoff sleep")
}
