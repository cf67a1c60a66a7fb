package thread

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/config"
	"github.com/sandwichfarm/pictofeed/internal/engagement"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/profile"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/relay"
	"github.com/sandwichfarm/pictofeed/internal/signer"
)

// fakeRelay serves comment pages and profile metadata from the same scripted
// event set.
type fakeRelay struct {
	mu        sync.Mutex
	comments  []*nostr.Event
	profiles  map[string]string // pubkey -> kind-0 content
	published []nostr.Event
	pubErr    error
}

func (f *fakeRelay) Subscribe(ctx context.Context, filters []nostr.Filter) (*relay.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var page []*nostr.Event
	fil := filters[0]
	switch {
	case len(fil.Kinds) == 1 && fil.Kinds[0] == protocol.KindComment:
		page = f.comments
	case len(fil.Kinds) == 1 && fil.Kinds[0] == protocol.KindProfileMetadata:
		if content, ok := f.profiles[fil.Authors[0]]; ok {
			page = []*nostr.Event{{
				ID:      "meta-" + fil.Authors[0],
				PubKey:  fil.Authors[0],
				Kind:    protocol.KindProfileMetadata,
				Content: content,
			}}
		}
	}

	ch := make(chan *nostr.Event, len(page)+1)
	for _, ev := range page {
		ch <- ev
	}
	eose := make(chan struct{})
	close(eose)
	return relay.NewSubscription(ch, eose, func() { close(ch) }), nil
}

func (f *fakeRelay) Publish(ctx context.Context, ev nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, ev)
	return nil
}

func testLogger(t *testing.T) *ops.Logger {
	t.Helper()
	return ops.NewLoggerWithWriter(&config.Logging{Level: "error"}, discard{})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func comment(id, pubkey, noteID, content string) *nostr.Event {
	return &nostr.Event{
		ID:      id,
		PubKey:  pubkey,
		Kind:    protocol.KindComment,
		Tags:    nostr.Tags{{"e", noteID}},
		Content: content,
	}
}

func newTestLoader(t *testing.T, fr *fakeRelay, sig signer.Signer) *Loader {
	t.Helper()
	log := testLogger(t)
	return NewLoader(fr, fr, profile.NewResolver(fr, log), sig, nil, log)
}

func TestOpenThreadStreamsCommentsWithProfiles(t *testing.T) {
	fr := &fakeRelay{
		comments: []*nostr.Event{
			comment("c1", "pk1", "note-1", "nice shot"),
			comment("c2", "pk2", "note-1", "agreed"),
		},
		profiles: map[string]string{
			"pk1": `{"name":"alice"}`,
		},
	}
	l := newTestLoader(t, fr, nil)

	ch, err := l.OpenThread(context.Background(), "note-1")
	if err != nil {
		t.Fatalf("OpenThread() error: %v", err)
	}

	var got []Comment
	for c := range ch {
		got = append(got, c)
	}

	if len(got) != 2 {
		t.Fatalf("received %d comments, want 2", len(got))
	}
	if got[0].Event.ID != "c1" || got[0].Profile.DisplayName != "alice" {
		t.Errorf("first comment = %s by %q", got[0].Event.ID, got[0].Profile.DisplayName)
	}
	// pk2 has no metadata, so the default profile carries the pubkey.
	if got[1].Profile.DisplayName != "pk2" {
		t.Errorf("second comment profile = %q, want pk2", got[1].Profile.DisplayName)
	}
}

func TestOpenThreadDeduplicates(t *testing.T) {
	fr := &fakeRelay{
		comments: []*nostr.Event{
			comment("c1", "pk1", "note-1", "hello"),
			comment("c1", "pk1", "note-1", "hello"),
		},
	}
	l := newTestLoader(t, fr, nil)

	ch, err := l.OpenThread(context.Background(), "note-1")
	if err != nil {
		t.Fatalf("OpenThread() error: %v", err)
	}

	count := 0
	for range ch {
		count++
	}
	if count != 1 {
		t.Errorf("received %d comments, want 1", count)
	}
}

func TestOpenThreadSeedsCommentCounters(t *testing.T) {
	fr := &fakeRelay{
		comments: []*nostr.Event{
			comment("c1", "pk1", "note-1", "nice shot"),
			comment("c1", "pk1", "note-1", "nice shot"), // duplicate delivery
			comment("c2", "pk2", "note-1", "agreed"),
		},
	}
	log := testLogger(t)
	idx := engagement.NewIndex(fr, log, 21)
	defer idx.Close()
	idx.Refresh(context.Background(), []string{"note-1"})

	l := NewLoader(fr, fr, profile.NewResolver(fr, log), nil, idx, log)

	ch, err := l.OpenThread(context.Background(), "note-1")
	if err != nil {
		t.Fatalf("OpenThread() error: %v", err)
	}
	count := 0
	for range ch {
		count++
	}

	if count != 2 {
		t.Fatalf("streamed %d comments, want 2", count)
	}
	if got := idx.Counters("note-1").Comments; got != 2 {
		t.Errorf("Comments counter = %d, want 2", got)
	}
}

func TestPostCommentSeedsCounter(t *testing.T) {
	fr := &fakeRelay{}
	log := testLogger(t)
	idx := engagement.NewIndex(fr, log, 21)
	defer idx.Close()
	idx.Refresh(context.Background(), []string{"note-1"})

	sk := nostr.GeneratePrivateKey()
	l := NewLoader(fr, fr, profile.NewResolver(fr, log), signer.FromHex(sk), idx, log)

	if _, err := l.PostComment(context.Background(), "note-1", "mine too"); err != nil {
		t.Fatalf("PostComment() error: %v", err)
	}
	if got := idx.Counters("note-1").Comments; got != 1 {
		t.Errorf("Comments counter = %d, want 1", got)
	}
}

func TestOpenThreadEmpty(t *testing.T) {
	l := newTestLoader(t, &fakeRelay{}, nil)

	ch, err := l.OpenThread(context.Background(), "note-1")
	if err != nil {
		t.Fatalf("OpenThread() error: %v", err)
	}
	if _, open := <-ch; open {
		t.Error("expected the channel to close without comments")
	}
}

func TestPostComment(t *testing.T) {
	fr := &fakeRelay{}
	sk := nostr.GeneratePrivateKey()
	l := newTestLoader(t, fr, signer.FromHex(sk))

	ev, err := l.PostComment(context.Background(), "note-1", "great picture")
	if err != nil {
		t.Fatalf("PostComment() error: %v", err)
	}

	if ev.Kind != protocol.KindComment {
		t.Errorf("Kind = %d, want %d", ev.Kind, protocol.KindComment)
	}
	if ev.Content != "great picture" {
		t.Errorf("Content = %q", ev.Content)
	}
	ref, ok := protocol.ParseTags(ev.Tags).Ref()
	if !ok || ref != "note-1" {
		t.Errorf("comment ref = %q, want note-1", ref)
	}
	if ev.Sig == "" {
		t.Error("comment is unsigned")
	}

	fr.mu.Lock()
	published := len(fr.published)
	fr.mu.Unlock()
	if published != 1 {
		t.Errorf("published %d events, want 1", published)
	}
}

func TestPostCommentWithoutSigner(t *testing.T) {
	l := newTestLoader(t, &fakeRelay{}, nil)

	if _, err := l.PostComment(context.Background(), "note-1", "hi"); !errors.Is(err, apperr.ErrNoSigner) {
		t.Errorf("error = %v, want ErrNoSigner", err)
	}
}

func TestPostCommentEmptyContent(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	l := newTestLoader(t, &fakeRelay{}, signer.FromHex(sk))

	if _, err := l.PostComment(context.Background(), "note-1", ""); err == nil {
		t.Error("expected error for empty comment")
	}
}

func TestPostCommentPublishFailure(t *testing.T) {
	fr := &fakeRelay{pubErr: apperr.ErrPublishRejected}
	sk := nostr.GeneratePrivateKey()
	l := newTestLoader(t, fr, signer.FromHex(sk))

	if _, err := l.PostComment(context.Background(), "note-1", "hi"); !errors.Is(err, apperr.ErrPublishRejected) {
		t.Errorf("error = %v, want ErrPublishRejected", err)
	}
}
