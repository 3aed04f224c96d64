package protocol

import "errors"

var (
	ErrInvalidRequest    = errors.New("protocol: invalid request")
	ErrInvalidResponse   = errors.New("protocol: invalid response")
	ErrVersionMismatch   = errors.New("protocol: jsonrpc version mismatch")
	ErrMissingResult     = errors.New("protocol: response carries neither result nor error")
	ErrAmbiguousResponse = errors.New("protocol: response carries both result and error")
)
