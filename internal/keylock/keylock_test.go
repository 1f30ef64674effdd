package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(User("1"))
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if len(m.locks) != 0 {
		t.Fatalf("expected released locks to be forgotten, have %d", len(m.locks))
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock(User("a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock(Thread("a"))
		unlock()
		close(done)
	}()
	<-done
}
