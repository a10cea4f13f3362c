// Package merge fans in the record streams of multiple plan readers and
// yields a single globally ordered sequence.
package merge

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gridpulse/reporting-client/internal/stream"
)

// ErrOutOfOrder reports a record that breaks a source's ascending-key
// guarantee. Plans partition the entity×metric space disjointly, so a
// duplicate key within one source is equally a protocol violation.
var ErrOutOfOrder = errors.New("record out of order")

// Source produces one plan's records in ascending key order and io.EOF at
// the end of the stream.
type Source interface {
	Next(ctx context.Context) (stream.Record, error)
}

type item struct {
	rec stream.Record
	err error
}

type head struct {
	rec stream.Record
	src int
}

// recordHeap orders the buffered head of each source by record key. Equal
// keys across sources cannot happen with disjoint plans; ties break on the
// source index for determinism anyway.
type recordHeap []head

func (h recordHeap) Len() int { return len(h) }
func (h recordHeap) Less(i, j int) bool {
	if c := h[i].rec.Compare(h[j].rec); c != 0 {
		return c < 0
	}
	return h[i].src < h[j].src
}
func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x any)  { *h = append(*h, x.(head)) }
func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Merger performs a k-way ordered merge across sources, running each source
// on its own goroutine so that network waits overlap. The per-source
// channels are unbuffered, so at most one record per source is pending at
// any time.
//
// A Merger is driven by a single consumer; its methods are not safe for
// concurrent use.
type Merger struct {
	chans  []chan item
	last   []*stream.Record // last record accepted per source, for the ordering check
	h      recordHeap
	cancel context.CancelFunc
	wg     sync.WaitGroup

	primed bool
	need   int // source index awaiting a refill, -1 if none
	err    error
}

// New starts one goroutine per source. The caller must consume via Next
// until io.EOF or call Stop; either way all goroutines terminate.
func New(ctx context.Context, sources []Source) *Merger {
	ctx, cancel := context.WithCancel(ctx)
	m := &Merger{
		chans:  make([]chan item, len(sources)),
		last:   make([]*stream.Record, len(sources)),
		cancel: cancel,
		need:   -1,
	}
	for i, src := range sources {
		ch := make(chan item)
		m.chans[i] = ch
		m.wg.Add(1)
		go func(src Source, ch chan item) {
			defer m.wg.Done()
			for {
				rec, err := src.Next(ctx)
				select {
				case ch <- item{rec: rec, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}(src, ch)
	}
	return m
}

// Next returns the earliest pending record across all sources and io.EOF
// once every source is exhausted. A fatal source error cancels all sources
// immediately and is returned from this and every subsequent call; records
// already returned stand.
func (m *Merger) Next(ctx context.Context) (stream.Record, error) {
	if m.err != nil {
		return stream.Record{}, m.err
	}
	if !m.primed {
		m.primed = true
		for i := range m.chans {
			if err := m.refill(ctx, i); err != nil {
				return stream.Record{}, m.fail(err)
			}
		}
	} else if m.need >= 0 {
		i := m.need
		m.need = -1
		if err := m.refill(ctx, i); err != nil {
			return stream.Record{}, m.fail(err)
		}
	}
	if m.h.Len() == 0 {
		return stream.Record{}, io.EOF
	}
	it := heap.Pop(&m.h).(head)
	// Refill lazily on the next call: if the source's following record turns
	// out to be a fatal error, this record has still been delivered.
	m.need = it.src
	return it.rec, nil
}

// refill pulls the next record of source i into the heap, enforcing the
// per-source ascending-key invariant. io.EOF retires the source.
func (m *Merger) refill(ctx context.Context, i int) error {
	select {
	case it := <-m.chans[i]:
		if it.err != nil {
			if errors.Is(it.err, io.EOF) {
				return nil
			}
			return it.err
		}
		if prev := m.last[i]; prev != nil && it.rec.Compare(*prev) <= 0 {
			return fmt.Errorf("%w: plan %s emitted key (%s, %d, %d, %s) after (%s, %d, %d, %s)",
				ErrOutOfOrder, it.rec.PlanID,
				it.rec.SampledAt.Format(time.RFC3339Nano), it.rec.MicrogridID, it.rec.ComponentID, it.rec.Metric,
				prev.SampledAt.Format(time.RFC3339Nano), prev.MicrogridID, prev.ComponentID, prev.Metric)
		}
		cp := it.rec
		m.last[i] = &cp
		heap.Push(&m.h, head{rec: it.rec, src: i})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail latches err and cancels all sources; no further records are pulled.
func (m *Merger) fail(err error) error {
	m.err = err
	m.cancel()
	return err
}

// Stop cancels all source goroutines and blocks until they exit. It is safe
// to call more than once and after exhaustion.
func (m *Merger) Stop() {
	m.cancel()
	m.wg.Wait()
}
