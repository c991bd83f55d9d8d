package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// retryPolicy matches spec.md §4.3's obligations exactly: initial 1s,
// factor 2, jitter ±10%, cap 30s, N attempts. Grounded on the
// teacher's internal/session/loop.go newRetryBackoff, which wires the
// same library for the same purpose one layer up the stack.
func retryPolicy(ctx context.Context, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2.0
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.1
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// withRetry runs fn, retrying on wuhuerr.Retryable errors per
// retryPolicy and invoking emit with a llm.retry payload before each
// retry and a llm.give_up payload on final failure, so the caller can
// append both as transcript entries without this package touching
// storage directly.
func withRetry(ctx context.Context, maxRetries int, purpose string, emit func(types.CustomPayload), fn func() error) error {
	policy := retryPolicy(ctx, maxRetries)
	retryIndex := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !wuhuerr.IsRetryable(err) {
			return err
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			emit(types.CustomPayload{
				CustomType: types.CustomPayloadLLMGiveUp,
				Data:       mustJSON(map[string]any{"retries": retryIndex, "error": err.Error(), "purpose": purpose}),
			})
			return err
		}

		emit(types.CustomPayload{
			CustomType: types.CustomPayloadLLMRetry,
			Data: mustJSON(map[string]any{
				"retryIndex":     retryIndex,
				"maxRetries":     maxRetries,
				"backoffSeconds": wait.Seconds(),
				"error":          err.Error(),
				"purpose":        purpose,
			}),
		})
		retryIndex++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
