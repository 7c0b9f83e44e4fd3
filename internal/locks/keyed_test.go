package locks

import (
	"sync"
	"testing"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("AB12CD34EF")
			counter++
			k.Unlock("AB12CD34EF")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("Expected 100 serialized increments, got %d", counter)
	}
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()

	k.Lock("AB12CD34EF")
	done := make(chan struct{})
	go func() {
		// a different key must not block on the first key's holder
		k.Lock("CD34EF56GH")
		k.Unlock("CD34EF56GH")
		close(done)
	}()
	<-done
	k.Unlock("AB12CD34EF")
}

func TestKeyedEntriesAreReclaimed(t *testing.T) {
	k := NewKeyed()

	k.Lock("AB12CD34EF")
	k.Unlock("AB12CD34EF")

	k.mu.Lock()
	n := len(k.entries)
	k.mu.Unlock()
	if n != 0 {
		t.Fatalf("Expected entry map to be empty, got %d entries", n)
	}
}
