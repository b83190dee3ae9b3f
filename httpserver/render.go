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

package httpserver

import (
	"encoding/json"
	"net/http"

	"go.gearno.de/x/panicf"

	"go.tevex.dev/storefront/apperr"
)

// RenderJSON writes v as the JSON response body with the given status
// code.
func RenderJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panicf.Panic("cannot json encode value: %w", err)
	}
}

// RenderPDF writes raw PDF bytes with the given status code.
func RenderPDF(w http.ResponseWriter, statusCode int, pdf []byte) {
	w.Header().Set("content-type", "application/pdf")
	w.WriteHeader(statusCode)
	if _, err := w.Write(pdf); err != nil {
		panicf.Panic("cannot write pdf response: %w", err)
	}
}

// RenderError translates err through the error taxonomy into the
// external envelope. This is the single point where internal failures
// become response shapes.
func RenderError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	RenderJSON(w, kind.HTTPStatus(), apperr.EnvelopeOf(err))
}
