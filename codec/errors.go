// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
)

// ParserErrorKind is the class of a ParserError.
type ParserErrorKind uint8

// Kinds of parser errors.
const (
	// Parse is any malformed XML.
	Parse ParserErrorKind = iota

	// Utf8 is an invalid UTF-8 sequence that is not a truncated codepoint at
	// the end of the input.
	Utf8

	// ShortTag is a short tag such as "<>" or "</>".
	ShortTag
)

func (k ParserErrorKind) String() string {
	switch k {
	case Utf8:
		return "utf8"
	case ShortTag:
		return "short tag"
	}
	return "parse"
}

// ParserError is returned by the decoder when the byte stream is malformed.
// Parser errors are never recoverable: the stream must be torn down.
type ParserError struct {
	Kind ParserErrorKind

	// Offset is the byte offset of the error relative to the data buffered by
	// the codec when it was detected.
	Offset int64
	Err    error
}

func (e *ParserError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec: %s error at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("codec: %s error at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *ParserError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match any ParserError of the same kind when the target
// carries no underlying error.
func (e *ParserError) Is(target error) bool {
	t, ok := target.(*ParserError)
	return ok && t.Err == nil && t.Kind == e.Kind
}
