package protocol

import (
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// ImageMeta is a parsed "imeta" media-attachment tag. Sub-entries are
// space-delimited key/value pairs ("url <value>", "m <value>", ...).
type ImageMeta struct {
	URL      string
	MimeType string
	Alt      string
	Hash     string
}

// Tag builds the wire form of the attachment tag.
func (im ImageMeta) Tag() nostr.Tag {
	tag := nostr.Tag{"imeta", "url " + im.URL}
	if im.MimeType != "" {
		tag = append(tag, "m "+im.MimeType)
	}
	if im.Alt != "" {
		tag = append(tag, "alt "+im.Alt)
	}
	if im.Hash != "" {
		tag = append(tag, "x "+im.Hash)
	}
	return tag
}

// TagSet is the typed view of an event's tags, parsed once at ingestion.
// Accessors per tag kind replace ad hoc string scanning over raw tag arrays.
type TagSet struct {
	refs      []string
	mentions  []string
	hashtags  []string
	images    []ImageMeta
	amount    int64
	hasAmount bool
}

// ParseTags builds a TagSet from raw event tags. Tag kinds this client does
// not consume are ignored; tags shorter than two elements are skipped.
func ParseTags(tags nostr.Tags) TagSet {
	var ts TagSet
	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			ts.refs = append(ts.refs, tag[1])
		case "p":
			ts.mentions = append(ts.mentions, tag[1])
		case "t":
			ts.hashtags = append(ts.hashtags, tag[1])
		case "imeta":
			ts.images = append(ts.images, parseImageMeta(tag))
		case "amount":
			if n, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				ts.amount = n
				ts.hasAmount = true
			}
		}
	}
	return ts
}

// Ref returns the first referenced event ID ("e" tag), if any.
func (ts TagSet) Ref() (string, bool) {
	if len(ts.refs) == 0 {
		return "", false
	}
	return ts.refs[0], true
}

// Refs returns every referenced event ID in tag order.
func (ts TagSet) Refs() []string { return ts.refs }

// Mentions returns the pubkeys carried in "p" tags.
func (ts TagSet) Mentions() []string { return ts.mentions }

// Hashtags returns the values of "t" tags.
func (ts TagSet) Hashtags() []string { return ts.hashtags }

// Images returns the parsed media attachments.
func (ts TagSet) Images() []ImageMeta { return ts.images }

// ZapAmount returns the declared amount from an "amount" tag in sats.
func (ts TagSet) ZapAmount() (int64, bool) { return ts.amount, ts.hasAmount }

func parseImageMeta(tag nostr.Tag) ImageMeta {
	var im ImageMeta
	for _, entry := range tag[1:] {
		key, value, ok := strings.Cut(entry, " ")
		if !ok {
			continue
		}
		switch key {
		case "url":
			im.URL = value
		case "m":
			im.MimeType = value
		case "alt":
			im.Alt = value
		case "x":
			im.Hash = value
		}
	}
	return im
}
