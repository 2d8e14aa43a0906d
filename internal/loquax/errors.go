package loquax

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers everything that prevents a usable HTTP response:
	// unreachable host, broken connection, cancelled context, bad status.
	ErrTransport = errors.New("transport failure")

	// ErrStatus is returned for non-2xx responses. It wraps ErrTransport.
	ErrStatus = fmt.Errorf("%w: unexpected status", ErrTransport)

	// ErrDecode means the response body is not valid JSON.
	ErrDecode = errors.New("response is not valid JSON")

	// ErrContract means the body is JSON but carries no string "translation".
	ErrContract = errors.New("response has no translation")
)

// Error classes reported by Classify.
const (
	ClassTransport = "transport"
	ClassDecode    = "decode"
	ClassContract  = "contract"
	ClassUnknown   = "unknown"
)

// Classify maps err onto one of the error classes. A nil error yields "".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrDecode):
		return ClassDecode
	case errors.Is(err, ErrContract):
		return ClassContract
	default:
		return ClassUnknown
	}
}
