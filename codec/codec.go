package codec

import "mini-jsonrpc/message"

type CodecType byte

const (
	CodecTypeJSONRPC CodecType = 0 // JSON-RPC 1.0 text
)

// Codec translates between calls and wire text. Implementations are stateless.
type Codec interface {
	EncodeRequest(method string, args []any, id message.CallID) (string, error)
	DecodeResponse(raw string) (*message.Response, error)
	Type() CodecType
}

// GetCodec returns the codec for codecType, or nil if the type is unknown.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSONRPC {
		return &JSONRPCCodec{}
	}

	return nil
}
