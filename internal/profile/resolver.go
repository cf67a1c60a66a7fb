// Package profile resolves and caches kind-0 profile metadata.
package profile

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/relay"
)

// Profile is the rendered view of a kind-0 metadata event.
type Profile struct {
	Picture          string
	DisplayName      string
	NIP05            string
	LightningAddress string
}

// Subscriber is the slice of the relay client the resolver needs.
type Subscriber interface {
	Subscribe(ctx context.Context, filters []nostr.Filter) (*relay.Subscription, error)
}

// Resolver fetches profiles on demand and caches them for the life of the
// process. A pubkey with no usable metadata event caches a default profile,
// so repeated lookups for absent profiles do not re-query the relay.
// Concurrent lookups for the same uncached pubkey are not coalesced; both
// query and the second write wins, which is harmless since profiles for a
// given pubkey are interchangeable.
type Resolver struct {
	client Subscriber
	log    *ops.Logger
	cache  *xsync.MapOf[string, *Profile]
}

// NewResolver returns a resolver with an empty cache.
func NewResolver(client Subscriber, log *ops.Logger) *Resolver {
	return &Resolver{
		client: client,
		log:    log,
		cache:  xsync.NewMapOf[string, *Profile](),
	}
}

// Resolve returns the profile for a pubkey, querying the relay on a cache
// miss. It never returns nil on a nil error.
func (r *Resolver) Resolve(ctx context.Context, pubkey string) (*Profile, error) {
	if p, ok := r.cache.Load(pubkey); ok {
		r.log.LogProfileResolve(pubkey, true)
		return p, nil
	}

	sub, err := r.client.Subscribe(ctx, []nostr.Filter{{
		Kinds:   []int{protocol.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}})
	if err != nil {
		return nil, err
	}

	events, err := sub.Drain(ctx)
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		p, ok := parseProfile(ev)
		if !ok {
			r.log.Debug("skipping malformed profile metadata",
				"pubkey", pubkey,
				"event_id", ev.ID,
				"error", apperr.ErrMalformedEvent)
			continue
		}
		r.cache.Store(pubkey, p)
		r.log.LogProfileResolve(pubkey, false)
		return p, nil
	}

	// No usable metadata event. Cache the fallback so the relay is not asked
	// again for this pubkey.
	p := defaultProfile(pubkey)
	r.cache.Store(pubkey, p)
	r.log.LogProfileResolve(pubkey, false)
	return p, nil
}

// Cached returns the cached profile without querying the relay.
func (r *Resolver) Cached(pubkey string) (*Profile, bool) {
	return r.cache.Load(pubkey)
}

func defaultProfile(pubkey string) *Profile {
	return &Profile{DisplayName: pubkey}
}

// profileContent is the JSON shape of a kind-0 event's content field.
type profileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Picture     string `json:"picture"`
	NIP05       string `json:"nip05"`
	Lud16       string `json:"lud16"`
	Lud06       string `json:"lud06"`
}

func parseProfile(ev *nostr.Event) (*Profile, bool) {
	var pc profileContent
	if err := json.Unmarshal([]byte(ev.Content), &pc); err != nil {
		return nil, false
	}

	name := pc.DisplayName
	if name == "" {
		name = pc.Name
	}
	if name == "" {
		name = ev.PubKey
	}

	return &Profile{
		Picture:          pc.Picture,
		DisplayName:      name,
		NIP05:            pc.NIP05,
		LightningAddress: lightningAddress(pc),
	}, true
}

// lightningAddress prefers the plain lud16 address and falls back to decoding
// a legacy lud06 LNURL when it carries a readable address.
func lightningAddress(pc profileContent) string {
	if pc.Lud16 != "" {
		return pc.Lud16
	}
	if pc.Lud06 == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(pc.Lud06)
	if err != nil {
		return ""
	}
	addr := string(decoded)
	if !strings.Contains(addr, "@") {
		return ""
	}
	return addr
}
