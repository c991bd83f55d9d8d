package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	var payloads []types.CustomPayload

	err := withRetry(context.Background(), 3, "test", func(p types.CustomPayload) {
		payloads = append(payloads, p)
	}, func() error {
		attempts++
		if attempts < 3 {
			return wuhuerr.Retryable(wuhuerr.Provider, errors.New("boom"), "transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 retry payloads, got %d", len(payloads))
	}
	for _, p := range payloads {
		if p.CustomType != types.CustomPayloadLLMRetry {
			t.Errorf("expected llm.retry payload, got %q", p.CustomType)
		}
	}
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, "test", func(types.CustomPayload) {}, func() error {
		attempts++
		return wuhuerr.New(wuhuerr.Provider, "permanent")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	var gaveUp bool
	err := withRetry(context.Background(), 1, "test", func(p types.CustomPayload) {
		if p.CustomType == types.CustomPayloadLLMGiveUp {
			gaveUp = true
		}
	}, func() error {
		return wuhuerr.Retryable(wuhuerr.Provider, errors.New("always fails"), "persistent")
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !gaveUp {
		t.Error("expected a llm.give_up payload to be emitted")
	}
}
