package types

import "errors"

var (
	ErrInvalidUserID    = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidGroupID   = errors.New("group ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrMissingTarget    = errors.New("message must target exactly one of receiverId or groupId")
	ErrEmptyMessage     = errors.New("message has no text, image or voice content")
	ErrContentTooLarge  = errors.New("message text exceeds 64KB limit")
	ErrInvalidDuration  = errors.New("voice duration cannot be negative")
	ErrInvalidFile      = errors.New("file attachment needs a url and a non-negative size")
	ErrWaveformTooLarge = errors.New("voice waveform exceeds 1024 samples")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedEvent   = errors.New("malformed event payload")
	ErrMissingReceiver  = errors.New("event missing receiverId")
	ErrMissingMessageID = errors.New("event missing messageId")
	ErrMissingGroup     = errors.New("event missing groupId")
)
