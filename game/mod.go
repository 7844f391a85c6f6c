package game

import "fmt"

// ProtocolError reports a request, reply or battle document that does not have the expected shape.
// The document is discarded; the process keeps running.
type ProtocolError struct {
	Doc    string // "request", "response", "battle", ...
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s: %s: %v", e.Doc, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s: %s", e.Doc, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(doc string, err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Doc: doc, Reason: fmt.Sprintf(format, args...), Err: err}
}
