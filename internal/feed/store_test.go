package feed

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func note(id string, createdAt nostr.Timestamp) *nostr.Event {
	return &nostr.Event{ID: id, CreatedAt: createdAt, Kind: 20}
}

func TestMergeDeduplicates(t *testing.T) {
	s := NewStore()

	added := s.Merge([]*nostr.Event{note("a", 100), note("b", 90)})
	if len(added) != 2 {
		t.Fatalf("first merge added %d, want 2", len(added))
	}

	added = s.Merge([]*nostr.Event{note("b", 90), note("c", 80)})
	if len(added) != 1 {
		t.Fatalf("second merge added %d, want 1", len(added))
	}
	if added[0].ID != "c" {
		t.Errorf("added[0].ID = %q, want c", added[0].ID)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := NewStore()
	batch := []*nostr.Event{note("a", 100), note("b", 90)}

	s.Merge(batch)
	cursorBefore := s.Cursor()
	added := s.Merge(batch)

	if len(added) != 0 {
		t.Errorf("re-merge added %d events, want 0", len(added))
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if s.Cursor() != cursorBefore {
		t.Errorf("re-merge moved cursor from %d to %d", cursorBefore, s.Cursor())
	}
}

func TestMergeSkipsInvalidEvents(t *testing.T) {
	s := NewStore()
	added := s.Merge([]*nostr.Event{nil, {CreatedAt: 50}, note("a", 100)})
	if len(added) != 1 {
		t.Errorf("added %d events, want 1", len(added))
	}
}

func TestNotesOrderedNewestFirst(t *testing.T) {
	s := NewStore()
	s.Merge([]*nostr.Event{note("b", 90), note("a", 100), note("c", 80)})

	notes := s.Notes()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if notes[i].ID != id {
			t.Errorf("notes[%d].ID = %q, want %q", i, notes[i].ID, id)
		}
	}
}

func TestOrderingTieBreaksOnID(t *testing.T) {
	s := NewStore()
	// Same timestamp, insertion order reversed relative to ID order.
	s.Merge([]*nostr.Event{note("zz", 100), note("aa", 100)})

	notes := s.Notes()
	if notes[0].ID != "aa" || notes[1].ID != "zz" {
		t.Errorf("tie ordering = [%s %s], want [aa zz]", notes[0].ID, notes[1].ID)
	}
}

func TestAdvanceCursor(t *testing.T) {
	s := NewStore()

	s.AdvanceCursor([]*nostr.Event{note("a", 100), note("b", 90)})
	if got := s.Cursor(); got != 89 {
		t.Errorf("Cursor() = %d, want 89", got)
	}

	s.AdvanceCursor([]*nostr.Event{note("c", 50)})
	if got := s.Cursor(); got != 49 {
		t.Errorf("Cursor() = %d, want 49", got)
	}
}

func TestCursorNeverMovesForward(t *testing.T) {
	s := NewStore()

	s.AdvanceCursor([]*nostr.Event{note("a", 50)})
	s.AdvanceCursor([]*nostr.Event{note("b", 100)})

	if got := s.Cursor(); got != 49 {
		t.Errorf("Cursor() = %d, want 49", got)
	}
}

func TestAdvanceCursorEmptyBatch(t *testing.T) {
	s := NewStore()
	before := s.Cursor()
	s.AdvanceCursor(nil)
	if s.Cursor() != before {
		t.Error("empty batch moved the cursor")
	}
}

func TestContains(t *testing.T) {
	s := NewStore()
	s.Merge([]*nostr.Event{note("a", 100)})

	if !s.Contains("a") {
		t.Error("Contains(a) = false, want true")
	}
	if s.Contains("b") {
		t.Error("Contains(b) = true, want false")
	}
}
