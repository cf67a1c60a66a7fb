package signer

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func TestFromNsec(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		t.Fatalf("EncodePrivateKey: %v", err)
	}

	s, err := FromNsec(nsec)
	if err != nil {
		t.Fatalf("FromNsec() error: %v", err)
	}

	wantPK, _ := nostr.GetPublicKey(sk)
	gotPK, err := s.GetPublicKey(context.Background())
	if err != nil {
		t.Fatalf("GetPublicKey() error: %v", err)
	}
	if gotPK != wantPK {
		t.Errorf("GetPublicKey() = %q, want %q", gotPK, wantPK)
	}
}

func TestFromNsecRejectsWrongPrefix(t *testing.T) {
	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}

	if _, err := FromNsec(npub); err == nil {
		t.Error("expected error for npub input")
	}
	if _, err := FromNsec("garbage"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestSignEvent(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	s := FromHex(sk)

	ev := nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      1,
		Content:   "hello",
	}
	if err := s.SignEvent(context.Background(), &ev); err != nil {
		t.Fatalf("SignEvent() error: %v", err)
	}

	if ev.Sig == "" || ev.ID == "" {
		t.Error("event not signed")
	}
	ok, err := ev.CheckSignature()
	if err != nil || !ok {
		t.Errorf("signature invalid: ok=%v err=%v", ok, err)
	}
}
