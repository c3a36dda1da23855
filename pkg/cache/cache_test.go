package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrCompute_Memoizes(t *testing.T) {
	c := New[string](Options{Capacity: 10, TTL: time.Minute})
	var calls atomic.Int32
	compute := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(context.Background(), "k", compute)
		if err != nil || v != "value" {
			t.Fatalf("GetOrCompute() = %q, %v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	c := New[int](Options{Capacity: 10, TTL: time.Minute})
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const waiters = 20
	var wg sync.WaitGroup
	results := make([]int, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "k", compute)
		}(i)
	}

	// Let the waiters pile up on the in-flight computation
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}
	for i := range results {
		if errs[i] != nil || results[i] != 42 {
			t.Errorf("waiter %d got %d, %v", i, results[i], errs[i])
		}
	}
}

func TestGetOrCompute_SharesErrorButDoesNotStoreIt(t *testing.T) {
	c := New[int](Options{Capacity: 10, TTL: time.Minute})
	boom := errors.New("boom")
	var calls atomic.Int32
	release := make(chan struct{})
	failing := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(context.Background(), "k", failing)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("waiter %d error = %v, want boom", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}

	v, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("after failure GetOrCompute() = %d, %v; want fresh computation", v, err)
	}
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	c := New[int](Options{Capacity: 10, TTL: 30 * time.Millisecond})
	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	if v, _ := c.GetOrCompute(context.Background(), "k", compute); v != 1 {
		t.Fatalf("first value = %d, want 1", v)
	}
	time.Sleep(80 * time.Millisecond)
	if v, _ := c.GetOrCompute(context.Background(), "k", compute); v != 2 {
		t.Errorf("value after TTL = %d, want recomputed 2", v)
	}
}

func TestGetOrCompute_LRUEviction(t *testing.T) {
	c := New[string](Options{Capacity: 2, TTL: time.Minute})
	put := func(key string) {
		_, _ = c.GetOrCompute(context.Background(), key, func(ctx context.Context) (string, error) { return key, nil })
	}

	put("a")
	put("b")
	c.Get("a") // a is now most recently used
	put("c")

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry b should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("entry a should survive")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestGetOrCompute_WaiterCancellation(t *testing.T) {
	c := New[int](Options{Capacity: 10, TTL: time.Minute})
	release := make(chan struct{})
	started := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	}

	done := make(chan int)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "k", compute)
		done <- v
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetOrCompute(ctx, "k", compute); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)
	if v := <-done; v != 1 {
		t.Errorf("leader got %d, want 1", v)
	}
	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Error("completed value should remain cached after a waiter cancelled")
	}
}

func TestGetOrCompute_LeaderCancellationRestartsFlight(t *testing.T) {
	c := New[int](Options{Capacity: 10, TTL: time.Minute})
	var calls atomic.Int32
	started := make(chan struct{}, 2)
	compute := func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		started <- struct{}{}
		if n == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 99, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(leaderCtx, "k", compute)
		leaderErr <- err
	}()
	<-started

	waiter := make(chan int, 1)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "k", compute)
		waiter <- v
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	select {
	case v := <-waiter:
		if v != 99 {
			t.Errorf("waiter got %d, want 99 from a restarted computation", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not restart the abandoned computation")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		template, component string
		versions            []string
		want                string
	}{
		{"list_versions", "  ZLib ", nil, `list_versions|"zlib"`},
		{"list_dependencies", "zlib", []string{"1.2.11"}, `list_dependencies|"zlib"|"1.2.11"`},
		{"list_dependencies", "ZLIB", []string{" 1.2.11-RC "}, `list_dependencies|"zlib"|" 1.2.11-RC "`},
		{"list_dependencies", "a|b", []string{"c"}, `list_dependencies|"a|b"|"c"`},
	}
	for _, tt := range tests {
		if got := Key(tt.template, tt.component, tt.versions...); got != tt.want {
			t.Errorf("Key(%q, %q, %v) = %q, want %q", tt.template, tt.component, tt.versions, got, tt.want)
		}
	}
}

func TestKeySeparatorInValues(t *testing.T) {
	pairs := [][2][]string{
		{{"a|b", "c"}, {"a", "b|c"}},
		{{`a"|"b`, "c"}, {"a", `b"|"c`}},
		{{"zlib", "1.2|"}, {"zlib|1.2", ""}},
	}
	for _, p := range pairs {
		first := Key("list_dependencies", p[0][0], p[0][1])
		second := Key("list_dependencies", p[1][0], p[1][1])
		if first == second {
			t.Errorf("Key(%q) and Key(%q) collide: %q", p[0], p[1], first)
		}
	}
}
