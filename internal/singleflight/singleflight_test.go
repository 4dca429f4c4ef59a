package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoReturnsResult(t *testing.T) {
	g := New()

	val, err := g.Do("key", func() (interface{}, error) {
		return "result", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if val.(string) != "result" {
		t.Errorf("Expected result, got %v", val)
	}
}

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	g := New()
	var executions int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := g.Do("key", func() (interface{}, error) {
				atomic.AddInt32(&executions, 1)
				<-release
				return 42, nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
			results[i] = val
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Errorf("Expected 1 execution, got %d", got)
	}
	for i, val := range results {
		if val.(int) != 42 {
			t.Errorf("Caller %d got %v, want 42", i, val)
		}
	}
}

func TestDoSharesError(t *testing.T) {
	g := New()
	boom := errors.New("boom")

	_, err := g.Do("key", func() (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected shared error, got %v", err)
	}
}

func TestDoReleasesKeyAfterCompletion(t *testing.T) {
	g := New()
	var executions int32

	for i := 0; i < 3; i++ {
		_, err := g.Do("key", func() (interface{}, error) {
			atomic.AddInt32(&executions, 1)
			return nil, errors.New("transient")
		})
		if err == nil {
			t.Fatal("Expected error")
		}
	}

	// Sequential calls each execute: a failed flight is not cached.
	if got := atomic.LoadInt32(&executions); got != 3 {
		t.Errorf("Expected 3 executions, got %d", got)
	}
}

func TestDoIndependentKeys(t *testing.T) {
	g := New()
	var executions int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = g.Do(key, func() (interface{}, error) {
				atomic.AddInt32(&executions, 1)
				<-release
				return key, nil
			})
		}(key)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 2 {
		t.Errorf("Expected independent keys to execute separately, got %d", got)
	}
}

func TestForget(t *testing.T) {
	g := New()
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = g.Do("key", func() (interface{}, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()
	<-started

	g.Forget("key")

	done := make(chan interface{}, 1)
	go func() {
		val, _ := g.Do("key", func() (interface{}, error) {
			return "new", nil
		})
		done <- val
	}()

	select {
	case val := <-done:
		if val.(string) != "new" {
			t.Errorf("Expected fresh execution after Forget, got %v", val)
		}
	case <-time.After(time.Second):
		t.Fatal("Forget did not release the key")
	}
	close(release)
}
