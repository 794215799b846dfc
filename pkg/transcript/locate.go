// Package transcript implements the transcript-span locator: a pure
// function over bytes that finds the byte offsets of the "vigencia" JSON
// value inside an HTTP/1.1 response buffer, without ever unmarshalling the
// buffer through encoding/json (which would discard the original byte
// positions the MPC-TLS commitment needs to refer to).
package transcript

import (
	"bufio"
	"bytes"
	"io"
	"net/http"

	"github.com/proofheir/attestor/pkg/attestationerr"
)

const vigenciaKey = `"vigencia"`

// LocateVigencia parses buf as one HTTP/1.1 response and returns the
// [start, end) byte offsets, within buf, of the JSON string value bound to
// the first occurrence of the key "vigencia" in the body; nesting depth is
// not checked, so a nested "vigencia" key that appears before the top-level
// one is the one returned. The returned span excludes the surrounding
// quotes and any JSON whitespace: callers receive exactly the string's
// content bytes (see DESIGN.md's quote-handling convention).
func LocateVigencia(buf []byte) (start, end int, err error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf)), nil)
	if err != nil {
		return 0, 0, attestationerr.Wrap(attestationerr.ExternalServiceError, "malformed HTTP response", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, attestationerr.Wrap(attestationerr.ExternalServiceError, "read HTTP body", err)
	}

	// Locate the body within the original buffer: net/http has already
	// consumed and possibly dechunked it, so we re-find it by content
	// rather than trusting header-declared offsets.
	bodyStart := bytes.Index(buf, body)
	if bodyStart < 0 || len(body) == 0 {
		return 0, 0, attestationerr.New(attestationerr.ExternalServiceError, "could not locate response body in buffer")
	}

	keyIdx := bytes.Index(body, []byte(vigenciaKey))
	if keyIdx < 0 {
		return 0, 0, attestationerr.New(attestationerr.CommitmentError, "vigencia field missing from response")
	}

	cursor := keyIdx + len(vigenciaKey)
	cursor = skipJSONWhitespace(body, cursor)
	if cursor >= len(body) || body[cursor] != ':' {
		return 0, 0, attestationerr.New(attestationerr.CommitmentError, "malformed vigencia field: missing colon")
	}
	cursor++
	cursor = skipJSONWhitespace(body, cursor)
	if cursor >= len(body) || body[cursor] != '"' {
		return 0, 0, attestationerr.New(attestationerr.CommitmentError, "vigencia value is not a JSON string")
	}
	cursor++ // past opening quote

	valueStart := cursor
	for cursor < len(body) && body[cursor] != '"' {
		if body[cursor] == '\\' {
			cursor++ // skip escaped character
		}
		cursor++
	}
	if cursor >= len(body) {
		return 0, 0, attestationerr.New(attestationerr.CommitmentError, "unterminated vigencia string value")
	}
	valueEnd := cursor

	return bodyStart + valueStart, bodyStart + valueEnd, nil
}

func skipJSONWhitespace(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}
