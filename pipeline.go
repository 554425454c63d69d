package micdaq

import (
	"sync"

	"github.com/accelerolab/micdaq/internal/unboundedchan"
)

// Pipeline couples one Sampler to one CSVWriter through an unbounded queue.
// The sampler is the sole producer and the writer the sole consumer; no
// other state is shared between them. The queue's unbounded backlog is a
// deliberate trade: if the writer falls behind, memory grows rather than
// samples being dropped or the sampling cadence disturbed.
type Pipeline struct {
	Sampler *Sampler
	Writer  *CSVWriter
}

// NewPipeline builds an acquisition pipeline from a validated configuration,
// a signal source and a clock.
func NewPipeline(cfg AcquireConfig, source SignalSource, clock Clock) *Pipeline {
	return &Pipeline{
		Sampler: NewSampler(cfg, source, clock),
		Writer:  NewCSVWriter(cfg.OutputStem, cfg.RotationInterval(), clock),
	}
}

// Run executes the acquisition: the writer drains in the background while
// the sampler runs to completion in this goroutine. Closing the interrupt
// channel ends the run early but cleanly. Run returns after the writer has
// drained every queued sample and closed its file; a writer I/O error also
// stops the sampler and is returned here.
func (p *Pipeline) Run(interrupt <-chan struct{}) (RunSummary, error) {
	queue := unboundedchan.NewUnboundedChannel[Sample]()

	writerDone := make(chan error, 1)
	go func() { writerDone <- p.Writer.Run(queue.Out()) }()

	// The sampler must stop for either of two reasons: an external
	// interrupt, or the writer dying on an I/O error (there is no point
	// acquiring samples nobody can persist).
	stop := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		select {
		case <-interrupt:
		case err := <-writerDone:
			writerDone <- err // repost for the join below
		case <-stop: // run already over; nothing to watch
			return
		}
		stopOnce.Do(func() { close(stop) })
	}()

	p.Sampler.Interrupt = stop
	summary := p.Sampler.Run(queue.In())

	// Shutdown: closing the queue input is the sentinel. The writer drains
	// everything enqueued before it and only then exits; we join with no
	// timeout, favoring a complete file over a prompt exit.
	close(queue.In())
	err := <-writerDone
	stopOnce.Do(func() { close(stop) })

	if err != nil {
		// The writer died early, so nothing is consuming the queue. Discard
		// the backlog to let its pump goroutine finish.
		for range queue.Out() {
		}
	}
	return summary, err
}
