package retry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/subauto/subauto/pkg/log"
)

// ErrCancelled is returned when a cancel check fires during execution or
// during a backoff wait. Callers distinguish it from real failures with
// errors.Is.
var ErrCancelled = errors.New("cancelled")

// Config controls the bounded-retry policy.
type Config struct {
	MaxRetries         int
	InitialDelay       float64 // seconds
	MaxDelay           float64 // seconds
	ExponentialBase    float64
	Jitter             bool
	RetryOnRateLimit   bool
	RetryOnServerError bool
}

// DefaultConfig mirrors the tuning the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         5,
		InitialDelay:       1.0,
		MaxDelay:           60.0,
		ExponentialBase:    2.0,
		Jitter:             true,
		RetryOnRateLimit:   true,
		RetryOnServerError: true,
	}
}

var networkKeywords = []string{
	"connection", "timeout", "timed out", "network",
	"unreachable", "reset", "refused", "broken pipe",
	"eof", "ssl", "certificate", "handshake",
	"dns", "resolve", "socket", "connect", "incomplete",
}

var rateLimitKeywords = []string{"rate", "limit", "quota", "429", "too many"}

var serverErrorKeywords = []string{"500", "502", "503", "504", "server error", "internal error"}

// Provider-transient status strings surfaced by some backends.
var providerTransientKeywords = []string{
	"resource_exhausted", "unavailable", "deadline_exceeded",
	"internal", "aborted",
}

// Matches API-suggested waits like "try again in 1.57s" or "retry after 2.5s".
var suggestedDelayRe = regexp.MustCompile(`(?i)(?:try again in|retry after)\s+([\d.]+)\s*s`)

// Engine executes operations under a bounded-retry policy with exponential
// backoff and cooperative cancellation.
type Engine struct {
	config Config
	logger *log.Logger
	// sleepTick is the granularity of cancel checks during backoff waits.
	sleepTick time.Duration
}

func NewEngine(config Config) *Engine {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Engine{
		config:    config,
		logger:    log.GetLogger(),
		sleepTick: 100 * time.Millisecond,
	}
}

// IsRetryable classifies an error as transient. Anything not recognized is
// fatal and must propagate without retry.
func (e *Engine) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())

	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	if e.config.RetryOnRateLimit {
		for _, kw := range rateLimitKeywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}

	if e.config.RetryOnServerError {
		for _, kw := range serverErrorKeywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}

	for _, kw := range providerTransientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	return false
}

// ComputeDelay returns the wait before the next attempt, in seconds. An
// API-suggested wait embedded in the error message takes priority over the
// backoff schedule.
func (e *Engine) ComputeDelay(attempt int, err error) float64 {
	if err != nil {
		if m := suggestedDelayRe.FindStringSubmatch(err.Error()); m != nil {
			if suggested, parseErr := strconv.ParseFloat(m[1], 64); parseErr == nil {
				// Pad the suggestion a little so we land after the window.
				suggested *= 1.1
				e.logger.Info("Using API-suggested retry delay: %.2fs", suggested)
				return math.Max(suggested, 0.1)
			}
		}
	}

	delay := e.config.InitialDelay * math.Pow(e.config.ExponentialBase, float64(attempt))
	delay = math.Min(delay, e.config.MaxDelay)

	if e.config.Jitter {
		jitterRange := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	return math.Max(0.1, delay)
}

// Execute runs op until it succeeds, fails fatally, exhausts the retry
// budget, or is cancelled. onRetry is invoked as onRetry(attempt, delay,
// message) before each wait. cancelCheck is polled at every attempt boundary
// and every sleep tick; a cancellation during a long backoff is honored
// within one tick rather than after the full delay.
func (e *Engine) Execute(
	op func() (string, error),
	onRetry func(attempt int, delay float64, message string),
	cancelCheck func() bool,
) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if cancelCheck != nil && cancelCheck() {
			return "", ErrCancelled
		}

		if attempt > 0 {
			e.logger.Info("Retry attempt %d/%d...", attempt, e.config.MaxRetries)
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrCancelled) {
			return "", err
		}
		if !e.IsRetryable(err) || attempt == e.config.MaxRetries {
			e.logger.Error("Non-retryable error or retry budget exhausted: %v", err)
			return "", err
		}

		delay := e.ComputeDelay(attempt, err)
		e.logger.Warn("Error: %v. Retrying in %.2fs...", err, delay)

		if onRetry != nil {
			onRetry(attempt+1, delay, err.Error())
		}

		if err := e.sleepWithCancel(delay, cancelCheck); err != nil {
			return "", err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("retry budget exhausted")
	}
	return "", lastErr
}

// sleepWithCancel sleeps delaySec in short ticks, rechecking cancelCheck at
// each tick.
func (e *Engine) sleepWithCancel(delaySec float64, cancelCheck func() bool) error {
	remaining := time.Duration(delaySec * float64(time.Second))
	for remaining > 0 {
		if cancelCheck != nil && cancelCheck() {
			return ErrCancelled
		}
		tick := e.sleepTick
		if remaining < tick {
			tick = remaining
		}
		time.Sleep(tick)
		remaining -= tick
	}
	return nil
}
