// Package actions builds, signs and publishes the user-initiated events:
// picture notes, reactions, reposts and zap requests.
package actions

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/signer"
)

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	npubRe    = regexp.MustCompile(`\bnpub1[0-9a-z]{59}\b`)
)

// clientName identifies this client in published picture notes.
const clientName = "pictofeed"

// Publisher sends signed events to the relay.
type Publisher interface {
	Publish(ctx context.Context, ev nostr.Event) error
}

// Actions publishes user-initiated events.
type Actions struct {
	pub            Publisher
	signer         signer.Signer
	defaultZapSats int64
	reactionEmoji  string
	log            *ops.Logger
}

// New wires the action publisher. The reaction emoji and zap amount come
// from config.
func New(pub Publisher, sig signer.Signer, defaultZapSats int64, reactionEmoji string, log *ops.Logger) *Actions {
	if reactionEmoji == "" {
		reactionEmoji = "❤️"
	}
	return &Actions{
		pub:            pub,
		signer:         sig,
		defaultZapSats: defaultZapSats,
		reactionEmoji:  reactionEmoji,
		log:            log,
	}
}

// signAndPublish is the shared path for every action: build, sign, publish,
// log.
func (a *Actions) signAndPublish(ctx context.Context, kind int, content string, buildTags func(pubkey string) nostr.Tags) (*nostr.Event, error) {
	if a.signer == nil {
		return nil, apperr.ErrNoSigner
	}

	pubkey, err := a.signer.GetPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	ev := nostr.Event{
		PubKey:    pubkey,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      buildTags(pubkey),
		Content:   content,
	}
	if err := a.signer.SignEvent(ctx, &ev); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}

	if err := a.pub.Publish(ctx, ev); err != nil {
		a.log.LogPublish(kind, ev.ID, err)
		return nil, err
	}
	a.log.LogPublish(kind, ev.ID, nil)
	return &ev, nil
}

// PublishNote publishes a picture note. Each image becomes an imeta tag;
// hashtags in the caption become "t" tags and npub mentions become "p" tags.
func (a *Actions) PublishNote(ctx context.Context, caption string, images []protocol.ImageMeta) (*nostr.Event, error) {
	if len(images) == 0 {
		return nil, errors.New("picture note requires at least one image")
	}

	return a.signAndPublish(ctx, protocol.KindPictureNote, caption, func(pubkey string) nostr.Tags {
		var tags nostr.Tags
		for _, im := range images {
			tags = append(tags, im.Tag())
			if im.MimeType != "" {
				tags = append(tags, nostr.Tag{"m", im.MimeType})
			}
			if im.Hash != "" {
				tags = append(tags, nostr.Tag{"x", im.Hash})
			}
		}
		for _, m := range hashtagRe.FindAllStringSubmatch(caption, -1) {
			tags = append(tags, nostr.Tag{"t", m[1]})
		}
		for _, npub := range npubRe.FindAllString(caption, -1) {
			prefix, data, err := nip19.Decode(npub)
			if err != nil || prefix != "npub" {
				continue
			}
			tags = append(tags, nostr.Tag{"p", data.(string)})
		}
		tags = append(tags,
			nostr.Tag{"L", "ISO-639-1"},
			nostr.Tag{"l", "en", "ISO-639-1"},
			nostr.Tag{"client", clientName},
		)
		return tags
	})
}

// React publishes a reaction to a note.
func (a *Actions) React(ctx context.Context, noteID string) (*nostr.Event, error) {
	return a.signAndPublish(ctx, protocol.KindReaction, a.reactionEmoji, func(pubkey string) nostr.Tags {
		return nostr.Tags{
			{"e", noteID},
			{"p", pubkey},
		}
	})
}

// Repost publishes a repost of a note.
func (a *Actions) Repost(ctx context.Context, noteID string) (*nostr.Event, error) {
	return a.signAndPublish(ctx, protocol.KindRepost, "", func(pubkey string) nostr.Tags {
		return nostr.Tags{
			{"e", noteID},
			{"p", pubkey},
		}
	})
}

// ZapRequest publishes a zap for a note using the configured default amount.
func (a *Actions) ZapRequest(ctx context.Context, noteID, recipient string) (*nostr.Event, error) {
	content := fmt.Sprintf("%d sats zap", a.defaultZapSats)
	return a.signAndPublish(ctx, protocol.KindZapReceipt, content, func(pubkey string) nostr.Tags {
		return nostr.Tags{
			{"e", noteID},
			{"p", recipient},
			{"amount", fmt.Sprintf("%d", a.defaultZapSats)},
		}
	})
}
