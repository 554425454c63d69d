// Package unboundedchan provides a FIFO queue with channel endpoints and no
// capacity limit. A time-critical producer can always send without blocking;
// the consumer takes whatever backlog accumulates. Closing the input channel
// is the shutdown signal: everything already queued is still delivered before
// the output channel closes, so nothing sent before shutdown is lost.
package unboundedchan

// UnboundedChannel connects an input channel to an output channel through an
// elastic internal queue. Memory use is proportional to the backlog and is
// deliberately not bounded; callers accept that trade for loss-free delivery.
type UnboundedChannel[T any] struct {
	in    chan T
	out   chan T
	queue []T
	head  int
}

// NewUnboundedChannel creates an UnboundedChannel and starts its pump goroutine.
func NewUnboundedChannel[T any]() *UnboundedChannel[T] {
	uc := &UnboundedChannel[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go uc.pump()
	return uc
}

// In returns the channel the producer sends on. Close it to begin shutdown.
func (uc *UnboundedChannel[T]) In() chan<- T {
	return uc.in
}

// Out returns the channel the consumer receives on. It is closed only after
// every queued item has been delivered.
func (uc *UnboundedChannel[T]) Out() <-chan T {
	return uc.out
}

func (uc *UnboundedChannel[T]) pump() {
	for {
		if uc.head == len(uc.queue) {
			// Backlog empty: wait for input only.
			val, ok := <-uc.in
			if !ok {
				close(uc.out)
				return
			}
			uc.push(val)
			continue
		}
		select {
		case uc.out <- uc.queue[uc.head]:
			uc.head++
		case val, ok := <-uc.in:
			if !ok {
				// Input closed with a backlog: drain it, then close.
				for _, item := range uc.queue[uc.head:] {
					uc.out <- item
				}
				close(uc.out)
				return
			}
			uc.push(val)
		}
	}
}

func (uc *UnboundedChannel[T]) push(val T) {
	// Reclaim the consumed prefix once it dominates the slice, rather than
	// reallocating on every dequeue.
	if uc.head > 64 && uc.head*2 > len(uc.queue) {
		n := copy(uc.queue, uc.queue[uc.head:])
		uc.queue = uc.queue[:n]
		uc.head = 0
	}
	uc.queue = append(uc.queue, val)
}
