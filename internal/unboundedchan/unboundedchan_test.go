package unboundedchan

import (
	"testing"
	"time"
)

func TestOrderedDelivery(t *testing.T) {
	uc := NewUnboundedChannel[int]()

	// Send all integers [0, 499] without a consumer running, so the backlog
	// grows, then drain and check order.
	const max = 500
	go func() {
		ch := uc.In()
		for i := 0; i < max; i++ {
			ch <- i
		}
		close(ch)
	}()

	next := 0
	for d := range uc.Out() {
		if d != next {
			t.Fatalf("received %d, want %d", d, next)
		}
		next++
	}
	if next != max {
		t.Errorf("received %d items, want %d", next, max)
	}
}

func TestCloseDrainsBacklog(t *testing.T) {
	uc := NewUnboundedChannel[string]()
	const k = 100
	for i := 0; i < k; i++ {
		uc.In() <- "sample"
	}
	close(uc.In())

	// All k items must arrive before Out closes.
	count := 0
	for range uc.Out() {
		count++
	}
	if count != k {
		t.Errorf("drained %d items after close, want %d", count, k)
	}
}

func TestProducerNeverBlocks(t *testing.T) {
	uc := NewUnboundedChannel[int]()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			uc.In() <- i
		}
		close(uc.In())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked with no consumer present")
	}
	n := 0
	for range uc.Out() {
		n++
	}
	if n != 10000 {
		t.Errorf("drained %d items, want 10000", n)
	}
}
