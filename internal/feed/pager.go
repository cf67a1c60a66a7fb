package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/relay"
)

// ErrFetchInFlight is returned when a page request is started while an
// earlier one has not finished.
var ErrFetchInFlight = errors.New("page fetch already in flight")

// Subscriber is the slice of the relay client the pager needs.
type Subscriber interface {
	Subscribe(ctx context.Context, filters []nostr.Filter) (*relay.Subscription, error)
}

// MergeHook is called after a page lands with the full set of note IDs in the
// store, newest first. The engagement index hangs its refresh off this.
type MergeHook func(noteIDs []string)

// Pager drives paginated backfill of picture notes into a Store. At most one
// fetch runs at a time; a page is merged atomically only after the relay
// signals EOSE.
type Pager struct {
	store    *Store
	client   Subscriber
	log      *ops.Logger
	authors  []string
	pageSize int
	onMerge  MergeHook

	inFlight atomic.Bool
	nearEnd  func(f func())
}

// DefaultFeed builds a pager over the default account's notes.
func DefaultFeed(store *Store, client Subscriber, log *ops.Logger, defaultAuthor string, pageSize int, debounceMs int, onMerge MergeHook) *Pager {
	return newPager(store, client, log, []string{defaultAuthor}, pageSize, debounceMs, onMerge)
}

// ViewerFeed builds a pager over the feed shown to a specific viewer. Until
// contact-list resolution lands this degrades to the same single-author
// filter as the default feed.
// TODO: fetch the viewer's kind-3 contact list and page over the follows.
func ViewerFeed(store *Store, client Subscriber, log *ops.Logger, viewer, defaultAuthor string, pageSize int, debounceMs int, onMerge MergeHook) *Pager {
	log.Debug("viewer feed degraded to default account",
		"viewer", viewer,
		"author", defaultAuthor)
	return newPager(store, client, log, []string{defaultAuthor}, pageSize, debounceMs, onMerge)
}

func newPager(store *Store, client Subscriber, log *ops.Logger, authors []string, pageSize int, debounceMs int, onMerge MergeHook) *Pager {
	if debounceMs <= 0 {
		debounceMs = 200
	}
	return &Pager{
		store:    store,
		client:   client,
		log:      log,
		authors:  authors,
		pageSize: pageSize,
		onMerge:  onMerge,
		nearEnd:  debounce.New(time.Duration(debounceMs) * time.Millisecond),
	}
}

// FetchPage requests the next page of notes older than the cursor. It buffers
// the whole page until EOSE, merges it into the store in one step and then
// advances the cursor. Returns ErrFetchInFlight if a fetch is already
// running.
func (p *Pager) FetchPage(ctx context.Context) (int, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return 0, ErrFetchInFlight
	}
	defer p.inFlight.Store(false)

	cursor := p.store.Cursor()
	filter := nostr.Filter{
		Kinds:   []int{protocol.KindPictureNote},
		Authors: p.authors,
		Until:   &cursor,
		Limit:   p.pageSize,
	}

	sub, err := p.client.Subscribe(ctx, []nostr.Filter{filter})
	if err != nil {
		return 0, err
	}

	events, err := sub.Drain(ctx)
	if err != nil {
		return 0, err
	}

	added := p.store.Merge(events)
	p.store.AdvanceCursor(events)
	p.log.LogFeedPage(len(events), len(added), int64(p.store.Cursor()))

	if len(added) > 0 && p.onMerge != nil {
		p.onMerge(p.store.NoteIDs())
	}
	return len(added), nil
}

// NearEnd signals that the reader is approaching the end of the loaded feed.
// Bursts collapse into a single fetch; a fetch already in flight is left
// alone.
func (p *Pager) NearEnd(ctx context.Context) {
	p.nearEnd(func() {
		if _, err := p.FetchPage(ctx); err != nil && !errors.Is(err, ErrFetchInFlight) {
			p.log.Warn("page fetch failed", "error", err)
		}
	})
}

// Store returns the backing store.
func (p *Pager) Store() *Store { return p.store }
