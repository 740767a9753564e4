package step

import (
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// EventIterator walks a bounded window of the event sequence in order.
// Iterators are forward-only and finite; each factory call produces a fresh
// iterator positioned at the start, so traversal is restartable by
// requesting a new one.
type EventIterator interface {
	// Next returns the next event in the window. The second result is
	// false when the window is exhausted.
	Next() (types.Event, bool)
}

// rangeIterator walks a contiguous ID range [next, end) directly against
// the shared sequence.
type rangeIterator struct {
	seq  *sequence.EventSequence
	next types.EventID
	end  types.EventID
}

func newRangeIterator(seq *sequence.EventSequence, start, end types.EventID) *rangeIterator {
	return &rangeIterator{seq: seq, next: start, end: end}
}

func (it *rangeIterator) Next() (types.Event, bool) {
	if it.next >= it.end {
		return types.Event{}, false
	}
	id := it.next
	it.next++
	ev, err := it.seq.Get(id)
	if err != nil {
		// The window extends past the sequence; nothing more to yield.
		it.next = it.end
		return types.Event{}, false
	}
	return ev, true
}

// indexedIterator walks an explicit ordered list of positions, resolving
// each through the sequence. This is how filtered, non-contiguous views
// are traversed without copying events.
type indexedIterator struct {
	seq    *sequence.EventSequence
	lookup []types.EventID
	pos    int
}

func newIndexedIterator(seq *sequence.EventSequence, lookup []types.EventID) *indexedIterator {
	return &indexedIterator{seq: seq, lookup: lookup}
}

func (it *indexedIterator) Next() (types.Event, bool) {
	for it.pos < len(it.lookup) {
		id := it.lookup[it.pos]
		it.pos++
		ev, err := it.seq.Get(id)
		if err != nil {
			continue
		}
		return ev, true
	}
	return types.Event{}, false
}
