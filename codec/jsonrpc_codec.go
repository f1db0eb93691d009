package codec

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"github.com/go-faster/jx"

	"mini-jsonrpc/message"
)

// JSONRPCCodec reads and writes JSON-RPC 1.0 text with go-faster/jx.
//
// Requests are streamed member by member, so the order method, params, id is fixed by
// construction rather than by struct tags. Responses are parsed as strict JSON; nothing
// in the reply is ever evaluated.
type JSONRPCCodec struct{}

// EncodeRequest produces {"method":...,"params":[...],"id":...} as compact JSON.
func (c *JSONRPCCodec) EncodeRequest(method string, args []any, id message.CallID) (string, error) {
	if method == "" {
		return "", &EncodeError{Reason: "method name is empty"}
	}

	var e jx.Encoder
	w := &valueWriter{e: &e}

	e.ObjStart()
	e.FieldStart("method")
	e.Str(method)
	e.FieldStart("params")
	e.ArrStart()
	for i, arg := range args {
		if err := w.write(arg); err != nil {
			return "", &EncodeError{
				Method: method,
				Reason: "argument " + strconv.Itoa(i) + " is not representable",
				Err:    err,
			}
		}
	}
	e.ArrEnd()
	e.FieldStart("id")
	e.UInt64(uint64(id))
	e.ObjEnd()

	return string(e.Bytes()), nil
}

// DecodeResponse parses a reply.
//
// An error member set to null counts as absent, and a result member counts as present
// whenever its key exists, so JSON-RPC 1.0 replies such as {"result":3,"error":null,"id":1}
// and {"result":null,"error":{...},"id":1} decode as success and fault respectively.
//
// Invalid UTF-8 and replies nested beyond the decoder's depth limit are MalformedJSON.
func (c *JSONRPCCodec) DecodeResponse(raw string) (*message.Response, error) {
	data := []byte(raw)
	if !utf8.Valid(data) {
		return nil, &DecodeError{Kind: MalformedJSON, Detail: "invalid UTF-8"}
	}
	if !jx.Valid(data) {
		return nil, &DecodeError{Kind: MalformedJSON, Detail: "not a single JSON value"}
	}

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, &DecodeError{Kind: MalformedJSON, Detail: "not a JSON object"}
	}

	var (
		id, result, fault jx.Raw
		hasID, hasResult  bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Raw()
			if err != nil {
				return err
			}
			id, hasID = clone(v), true
		case "result":
			v, err := d.Raw()
			if err != nil {
				return err
			}
			result, hasResult = clone(v), true
		case "error":
			v, err := d.Raw()
			if err != nil {
				return err
			}
			fault = clone(v)
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, &DecodeError{Kind: MalformedJSON, Err: err}
	}

	hasError := fault != nil && !isNull(fault)
	switch {
	case hasError && hasResult && !isNull(result):
		return nil, &DecodeError{Kind: BothPresent}
	case hasError:
		result = nil
	case hasResult:
		fault = nil
	default:
		return nil, &DecodeError{Kind: MissingResult}
	}

	callID, err := parseID(id, hasID)
	if err != nil {
		return nil, err
	}

	return &message.Response{ID: callID, Result: result, Error: fault}, nil
}

func (c *JSONRPCCodec) Type() CodecType {
	return CodecTypeJSONRPC
}

func parseID(id jx.Raw, present bool) (message.CallID, error) {
	if !present || isNull(id) {
		return 0, &DecodeError{Kind: MissingID}
	}
	if jx.DecodeBytes(id).Next() != jx.Number {
		return 0, &DecodeError{Kind: MissingID, Detail: "id " + string(id) + " is not an integer"}
	}
	n, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0, &DecodeError{Kind: MissingID, Detail: "id " + string(id) + " is not a call id"}
	}
	return message.CallID(n), nil
}

func isNull(r jx.Raw) bool {
	return jx.DecodeBytes(r).Next() == jx.Null
}

// clone detaches a raw value from the decoder's buffer. Raw keeps the whitespace that
// followed the colon, so it is trimmed here.
func clone(r jx.Raw) jx.Raw {
	return append(jx.Raw(nil), bytes.TrimSpace(r)...)
}
