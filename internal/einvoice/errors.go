package einvoice

import "fmt"

// ErrorKind classifies a hard parse failure. Each kind is also a sentinel
// usable with errors.Is.
type ErrorKind string

func (k ErrorKind) Error() string {
	return string(k)
}

const (
	// ErrMalformedInput means the input is not well-formed XML
	ErrMalformedInput ErrorKind = "malformed input"
	// ErrMissingRequiredSection means no supplier section could be located
	ErrMissingRequiredSection ErrorKind = "missing required section"
	// ErrUnsupportedNesting means an envelope was found inside an unwrapped envelope
	ErrUnsupportedNesting ErrorKind = "unsupported envelope nesting"
	// ErrDocumentTooLarge means the input exceeded the configured size or node limit
	ErrDocumentTooLarge ErrorKind = "document too large"
)

// ParseError is the single failure value returned by Parse
type ParseError struct {
	Kind  ErrorKind
	Depth int // envelope depth at which the failure happened
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parsing invoice: %s", e.Kind)
	}
	return fmt.Sprintf("parsing invoice: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *ParseError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func newParseError(kind ErrorKind, depth int, err error) *ParseError {
	return &ParseError{Kind: kind, Depth: depth, Err: err}
}
