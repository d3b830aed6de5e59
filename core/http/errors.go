package http

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a request framing failure.
type ErrorKind uint8

const (
	BadRequestLine ErrorKind = iota + 1
	BadHeader
	HeadersTooLarge
	PayloadTooLarge
	ChunkFraming
	UnexpectedBody
	NotImplemented
)

var kindNames = [...]string{
	BadRequestLine:  "bad request line",
	BadHeader:       "bad header",
	HeadersTooLarge: "headers too large",
	PayloadTooLarge: "payload too large",
	ChunkFraming:    "chunk framing",
	UnexpectedBody:  "unexpected body",
	NotImplemented:  "not implemented",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Status returns the response status sent for this kind of error.
func (k ErrorKind) Status() int {
	switch k {
	case HeadersTooLarge:
		return StatusRequestHeaderFieldsTooLarge
	case PayloadTooLarge:
		return StatusPayloadTooLarge
	case NotImplemented:
		return StatusNotImplemented
	}
	return StatusBadRequest
}

// ProtocolError is returned by the parser when the byte stream can no
// longer be trusted. The connection must be closed after answering it.
type ProtocolError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "http: " + e.Kind.String()
	}
	return "http: " + e.Kind.String() + ": " + e.Detail
}

// Status is shorthand for e.Kind.Status().
func (e *ProtocolError) Status() int {
	return e.Kind.Status()
}

func protoErr(kind ErrorKind, detail string) *ProtocolError {
	return &ProtocolError{Kind: kind, Detail: detail}
}

// AsProtocolError unwraps err into a *ProtocolError.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrBodyLengthMismatch is returned by the response writer when the body
// does not match a declared Content-Length. It is a server bug, not a
// client error.
var ErrBodyLengthMismatch = errors.New("http: response body length does not match Content-Length")
