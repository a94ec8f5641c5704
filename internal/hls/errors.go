package hls

import (
	"errors"
	"fmt"
)

// Parse error kinds. Match with errors.Is.
var (
	ErrMissingFormatTag = errors.New("missing #EXTM3U format tag")
	ErrDanglingVariant  = errors.New("variant declaration without URI")
	ErrMissingDuration  = errors.New("segment URI without #EXTINF duration")
	ErrDanglingSegment  = errors.New("#EXTINF without segment URI")
	ErrBadReference     = errors.New("malformed URI reference")
	ErrBadAttribute     = errors.New("malformed attribute")
	ErrDuplicateVariant = errors.New("duplicate variant URI")
	ErrUnexpectedURI    = errors.New("URI line without variant declaration")
)

// ParseError describes why a playlist could not be parsed.
// Parse errors are fatal to the whole manifest.
type ParseError struct {
	Kind   error // one of the Err* sentinels
	Line   int   // 1-based, 0 when not tied to a line
	Detail string
	Err    error // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newParseError(kind error, line int, detail string, cause error) *ParseError {
	return &ParseError{Kind: kind, Line: line, Detail: detail, Err: cause}
}
