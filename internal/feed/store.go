// Package feed maintains the in-memory note timeline and its pagination
// cursor.
package feed

import (
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Store holds the merged, deduplicated feed. Notes are kept newest-first;
// ties on created_at order by event ID ascending so the ordering is total
// and stable across merges.
type Store struct {
	mu     sync.RWMutex
	notes  []*nostr.Event
	byID   map[string]*nostr.Event
	cursor nostr.Timestamp
}

// NewStore returns an empty store. The initial cursor is "now" so the first
// page request covers everything published so far.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*nostr.Event),
		cursor: nostr.Now(),
	}
}

// Merge folds a batch of events into the store, dropping any event whose ID
// is already present. It returns the newly added events, sorted the same way
// the store is. Merging the same batch twice is a no-op.
func (s *Store) Merge(events []*nostr.Event) []*nostr.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*nostr.Event
	for _, ev := range events {
		if ev == nil || ev.ID == "" {
			continue
		}
		if _, ok := s.byID[ev.ID]; ok {
			continue
		}
		s.byID[ev.ID] = ev
		s.notes = append(s.notes, ev)
		added = append(added, ev)
	}

	if len(added) > 0 {
		sortNotes(s.notes)
		sortNotes(added)
	}
	return added
}

// AdvanceCursor moves the cursor to one second before the oldest event in the
// batch, so the next page request excludes everything already seen. The
// cursor only ever moves backward in time.
func (s *Store) AdvanceCursor(events []*nostr.Event) {
	if len(events) == 0 {
		return
	}

	oldest := events[0].CreatedAt
	for _, ev := range events[1:] {
		if ev.CreatedAt < oldest {
			oldest = ev.CreatedAt
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next := oldest - 1; next < s.cursor {
		s.cursor = next
	}
}

// Cursor returns the upper bound for the next page request.
func (s *Store) Cursor() nostr.Timestamp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Notes returns a snapshot of the feed, newest first.
func (s *Store) Notes() []*nostr.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*nostr.Event, len(s.notes))
	copy(out, s.notes)
	return out
}

// NoteIDs returns the IDs of every note in the store, newest first.
func (s *Store) NoteIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.notes))
	for i, ev := range s.notes {
		ids[i] = ev.ID
	}
	return ids
}

// Contains reports whether a note with the given ID is in the store.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of notes in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

func sortNotes(events []*nostr.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}
