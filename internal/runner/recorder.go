package runner

import (
	"sync"

	"github.com/faustbrian/sequencer/internal/domain"
)

// Entry is one recorded dispatch in fake/record mode: which
// operation, and what store-level action would have occurred had the
// Runner been running in RealMode.
type Entry struct {
	Operation string
	Action    string
}

// Recorder is the in-memory sink for RecordingMode: a mutex-guarded,
// append-only log of dispatches, queryable by predicate.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an entry and returns a synthetic record usable as a
// Runner return value: fake mode never touches a real store, so the
// record carries only Name and a Pending State; its ID is nil, which
// the recording Runner path never reads.
func (r *Recorder) Record(operation, action string) *domain.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Operation: operation, Action: action})
	return &domain.Record{Name: operation, State: domain.StatePending}
}

// Entries returns a snapshot of every recorded dispatch, in the order
// they were recorded.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns every entry matching predicate, preserving order.
func (r *Recorder) Find(predicate func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if predicate(e) {
			out = append(out, e)
		}
	}
	return out
}
