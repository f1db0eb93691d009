package codec

import "fmt"

// EncodeError reports a request that cannot be put on the wire: an empty method name or
// an argument outside the supported value model.
type EncodeError struct {
	Method string
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("codec: encode %q: %s", e.Method, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeErrorKind classifies malformed responses.
type DecodeErrorKind int

const (
	MalformedJSON DecodeErrorKind = iota + 1 // Not exactly one JSON object
	MissingResult                            // Neither result nor error
	BothPresent                              // Result and error both set
	MissingID                                // No usable integer id
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed JSON"
	case MissingResult:
		return "missing result"
	case BothPresent:
		return "both result and error present"
	case MissingID:
		return "missing id"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

// DecodeError reports a response that is not a well-formed JSON-RPC reply.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "codec: decode response: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
