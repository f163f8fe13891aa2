package gitexec

import (
	"context"
	"strings"
	"time"

	"repostate/internal/giterr"
)

// DefaultWriteBackoffs são as esperas entre tentativas quando outro processo
// segura o index.lock.
var DefaultWriteBackoffs = []time.Duration{
	80 * time.Millisecond,
	160 * time.Millisecond,
	320 * time.Millisecond,
}

// Sleeper permite que testes substituam a espera entre tentativas.
type Sleeper func(ctx context.Context, d time.Duration) error

// AttemptFunc é chamada depois de cada tentativa (diagnóstico).
type AttemptFunc func(attempt int, result Result, err error, willRetry bool)

// RetryPolicy controla RunWithRetry.
type RetryPolicy struct {
	Backoffs  []time.Duration
	Sleep     Sleeper
	OnAttempt AttemptFunc
}

// RunWithRetry repete req enquanto o git reportar index.lock transitório.
// O timeout de cada tentativa respeita o deadline restante de ctx.
func RunWithRetry(ctx context.Context, runner Runner, req Request, policy RetryPolicy) (Result, error) {
	backoffs := policy.Backoffs
	if backoffs == nil {
		backoffs = DefaultWriteBackoffs
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepWithContext
	}
	fallback := req.Timeout

	for attempt := 0; ; attempt++ {
		attemptReq := req
		attemptReq.Timeout = RemainingTimeout(ctx, fallback)
		result, err := runner.Run(ctx, attemptReq)

		retry := err == nil && result.ExitCode != 0 && IsTransientIndexLock(result.Stderr) && attempt < len(backoffs)
		if policy.OnAttempt != nil {
			policy.OnAttempt(attempt+1, result, err, retry)
		}
		if !retry {
			return result, err
		}

		if sleepErr := sleep(ctx, backoffs[attempt]); sleepErr != nil {
			if mapped := giterr.FromContext(sleepErr, "Retry de index.lock interrompido."); mapped != nil {
				return result, mapped
			}
			return result, sleepErr
		}
	}
}

func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemainingTimeout devolve o menor entre fallback e o tempo até o deadline de ctx.
func RemainingTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = defaultTimeout
	}
	if ctx == nil {
		return fallback
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}

func IsTransientIndexLock(stderr string) bool {
	lower := strings.ToLower(stderr)
	if !strings.Contains(lower, "index.lock") {
		return false
	}
	return strings.Contains(lower, "another git process") ||
		strings.Contains(lower, "file exists") ||
		strings.Contains(lower, "unable to create") ||
		strings.Contains(lower, "could not lock")
}
