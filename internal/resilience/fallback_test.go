package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/arcsong/arcsong/pkg/provider/llm"
	llmmock "github.com/arcsong/arcsong/pkg/provider/llm/mock"
)

func TestFallbackGroupPriorityOrder(t *testing.T) {
	g := NewFallbackGroup[string](nil)
	g.Add("secondary", 2, "b", CircuitBreakerConfig{})
	g.Add("primary", 1, "a", CircuitBreakerConfig{})

	var tried []string
	got, err := ExecuteWithResult(g, func(target string) (string, error) {
		tried = append(tried, target)
		return target, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "a" {
		t.Fatalf("result = %q, want %q", got, "a")
	}
	if len(tried) != 1 || tried[0] != "a" {
		t.Fatalf("tried %v, want just the primary", tried)
	}
}

func TestFallbackGroupFallsThrough(t *testing.T) {
	g := NewFallbackGroup[string](nil)
	g.Add("primary", 1, "a", CircuitBreakerConfig{})
	g.Add("secondary", 2, "b", CircuitBreakerConfig{})

	got, err := ExecuteWithResult(g, func(target string) (string, error) {
		if target == "a" {
			return "", errors.New("primary down")
		}
		return target, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "b" {
		t.Fatalf("result = %q, want fallback %q", got, "b")
	}
}

func TestFallbackGroupAllFailed(t *testing.T) {
	g := NewFallbackGroup[string](nil)
	g.Add("only", 1, "a", CircuitBreakerConfig{})

	_, err := ExecuteWithResult(g, func(string) (string, error) {
		return "", errors.New("boom")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupEmpty(t *testing.T) {
	g := NewFallbackGroup[string](nil)
	_, err := ExecuteWithResult(g, func(string) (string, error) { return "", nil })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed for empty group", err)
	}
}

func TestLLMFallbackComplete(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("quota exceeded")}
	secondary := llmmock.New("hello from backup")

	f := NewLLMFallback(nil)
	f.Add("primary", 1, primary, CircuitBreakerConfig{})
	f.Add("secondary", 2, secondary, CircuitBreakerConfig{})

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello from backup" {
		t.Fatalf("content = %q", resp.Content)
	}
	if primary.Calls() != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.Calls())
	}
}
