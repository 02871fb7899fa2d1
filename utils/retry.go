package utils

import (
	"context"
	"time"
)

// Retry 执行操作，retryable 返回 true 时重试，最多 attempts 次
func Retry(ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, operation func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastError error
	for i := 0; i < attempts; i++ {
		lastError = operation()
		if lastError == nil || !retryable(lastError) {
			return lastError
		}

		Logger.Debug().
			Err(lastError).
			Int("attempt", i+1).
			Int("maxRetry", attempts).
			Msg("操作冲突，准备重试")

		// 最后一次失败不需要等待
		if i < attempts-1 && backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastError
}
