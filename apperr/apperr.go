// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

// Package apperr defines the fixed taxonomy of externally visible
// failures. Every error that crosses the HTTP boundary is translated
// into exactly one of these kinds; internal detail never leaks past
// this package.
package apperr

import (
	"errors"
	"net/http"
)

type (
	// Kind classifies an error into one of the externally visible
	// failure shapes.
	Kind int

	// Error carries a kind, a caller facing message, and an
	// optional wrapped cause kept for server side logging only.
	Error struct {
		Kind    Kind
		Message string
		cause   error
	}

	// Envelope is the JSON error body shared by every non-2xx
	// response.
	Envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
)

const (
	KindUser Kind = iota + 1
	KindAuth
	KindAccessDenied
	KindNotFound
	KindPayloadTooLarge
	KindRateLimited
	KindServer
)

// New creates an Error with the given kind and caller facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that keeps cause for logging while exposing
// only message to the caller.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUser:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable error code used in the envelope.
func (k Kind) Code() string {
	switch k {
	case KindUser:
		return "bad_request"
	case KindAuth:
		return "unauthorized"
	case KindAccessDenied:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// KindOf extracts the kind from err, defaulting to KindServer so an
// unclassified failure is always surfaced generically.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindServer
}

// EnvelopeOf builds the external JSON body for err. Unclassified
// errors get a generic message, never their own text.
func EnvelopeOf(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{
			Error:   e.Kind.Code(),
			Message: e.Message,
		}
	}

	return Envelope{
		Error:   KindServer.Code(),
		Message: "internal error",
	}
}
