// Package protocol holds the Nostr wire-level constants and tag conventions
// this client depends on.
package protocol

// Event kinds. These are protocol constants and must match the relay side
// exactly for interoperability.
const (
	KindProfileMetadata = 0
	KindComment         = 1
	KindRepost          = 6
	KindReaction        = 7
	KindPictureNote     = 20
	KindZapReceipt      = 9735
)
