package proto

import "errors"

var (
	ErrEncodeMessage    = errors.New("proto: encode control message")
	ErrMalformedMessage = errors.New("proto: malformed control message")
)
