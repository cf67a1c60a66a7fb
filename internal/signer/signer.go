// Package signer abstracts event signing so components never touch key
// material directly.
package signer

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Signer produces signatures for outgoing events.
type Signer interface {
	GetPublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, ev *nostr.Event) error
}

// Local signs with an in-process secret key.
type Local struct {
	sk string
}

// FromNsec builds a local signer from a bech32 nsec string.
func FromNsec(nsec string) (*Local, error) {
	prefix, data, err := nip19.Decode(nsec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nsec: %w", err)
	}
	if prefix != "nsec" {
		return nil, fmt.Errorf("expected nsec, got %s", prefix)
	}
	return &Local{sk: data.(string)}, nil
}

// FromHex builds a local signer from a hex secret key.
func FromHex(sk string) *Local {
	return &Local{sk: sk}
}

func (l *Local) GetPublicKey(ctx context.Context) (string, error) {
	return nostr.GetPublicKey(l.sk)
}

func (l *Local) SignEvent(ctx context.Context, ev *nostr.Event) error {
	return ev.Sign(l.sk)
}
