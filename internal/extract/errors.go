package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrExtraction matches every *ExtractionError via errors.Is.
var ErrExtraction = errors.New("extraction failed")

type Kind string

const (
	KindInput     Kind = "input"
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindSchema    Kind = "schema"
)

// ExtractionError is the single failure type extractors return. A caller
// that sees one gets no patches at all.
type ExtractionError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s failed (%s): %v", ErrExtraction, e.Op, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

func newError(kind Kind, op string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Op: op, Err: err}
}

// Wrap turns any error into an *ExtractionError, classifying deadlines as
// timeouts. Existing extraction errors pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, op, err)
	}
	return newError(KindTransport, op, err)
}

// KindOf reports the kind of an extraction error, or "" for other errors.
func KindOf(err error) Kind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
