package chat

import "errors"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrSenderMismatch = errors.New("sender does not match connection")
	ErrRateLimited    = errors.New("inbound rate limit exceeded")
	ErrUnknownUser    = errors.New("unknown user")
	ErrMediaDisabled  = errors.New("file uploads are disabled")
	ErrClientClosed   = errors.New("client closed")
)
