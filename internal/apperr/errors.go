package apperr

import "errors"

var (
	ErrConnectionFailed   = errors.New("relay connection failed")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrMalformedEvent     = errors.New("malformed event")
	ErrPublishRejected    = errors.New("publish rejected")
	ErrNoSigner           = errors.New("signing capability not found")
)
