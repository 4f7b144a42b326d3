package toolregistry

import (
	"context"
	"errors"
	"testing"
	"time"

	"chemagent/internal/tools"
)

func countingTool(name string, deterministic bool, calls *int, fail *bool) *tools.Func {
	return &tools.Func{ToolName: name, Deterministic: deterministic, Fn: func(_ context.Context, input, _ string) (string, error) {
		*calls++
		if fail != nil && *fail {
			return "", errors.New("lookup failed")
		}
		return "result:" + input, nil
	}}
}

func TestCacheHitSkipsInvocation(t *testing.T) {
	calls := 0
	tool := countingTool("SMILES2Weight", true, &calls, nil)
	reg, err := New([]tools.Tool{tool}, WithCatalog([]string{"SMILES2Weight"}), WithCache(DefaultCacheConfig()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	for i := 0; i < 3; i++ {
		res, err := reg.Dispatch(context.Background(), "SMILES2Weight", " CCO ", "")
		if err != nil || !res.Success {
			t.Fatalf("dispatch %d: %+v %v", i, res, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one invocation, got %d", calls)
	}
}

func TestCacheSkipsNonDeterministicAndExcluded(t *testing.T) {
	plainCalls, excludedCalls := 0, 0
	plain := countingTool("Plain", false, &plainCalls, nil)
	excluded := countingTool("PythonREPL", true, &excludedCalls, nil)
	list := []tools.Tool{plain, excluded}
	reg, err := New(list, WithCatalog(tools.Names(list)), WithCache(DefaultCacheConfig()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, _ = reg.Dispatch(context.Background(), "Plain", "x", "")
		_, _ = reg.Dispatch(context.Background(), "PythonREPL", "x", "")
	}
	if plainCalls != 2 || excludedCalls != 2 {
		t.Fatalf("expected uncached calls, got plain=%d excluded=%d", plainCalls, excludedCalls)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	calls := 0
	fail := true
	tool := countingTool("Name2SMILES", true, &calls, &fail)
	reg, err := New([]tools.Tool{tool}, WithCatalog([]string{"Name2SMILES"}), WithCache(DefaultCacheConfig()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	res, _ := reg.Dispatch(context.Background(), "Name2SMILES", "aspirin", "")
	if res.Success {
		t.Fatalf("expected failure")
	}
	fail = false
	res, _ = reg.Dispatch(context.Background(), "Name2SMILES", "aspirin", "")
	if !res.Success || calls != 2 {
		t.Fatalf("failure must not be cached: %+v calls=%d", res, calls)
	}
}

func TestCacheEntriesExpire(t *testing.T) {
	calls := 0
	tool := countingTool("SMILES2Formula", true, &calls, nil)
	reg, err := New([]tools.Tool{tool}, WithCatalog([]string{"SMILES2Formula"}), WithCache(CacheConfig{MaxSize: 4, TTL: time.Millisecond}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	_, _ = reg.Dispatch(context.Background(), "SMILES2Formula", "CCO", "")
	time.Sleep(5 * time.Millisecond)
	_, _ = reg.Dispatch(context.Background(), "SMILES2Formula", "CCO", "")
	if calls != 2 {
		t.Fatalf("expected expired entry to be refreshed, got %d calls", calls)
	}
}
