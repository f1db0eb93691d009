package codec

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/message"
)

func TestGetCodec(t *testing.T) {
	c := GetCodec(CodecTypeJSONRPC)
	require.NotNil(t, c)
	assert.Equal(t, CodecTypeJSONRPC, c.Type())

	assert.Nil(t, GetCodec(CodecType(42)))
}

func TestEncodeRequest(t *testing.T) {
	type product struct {
		Name  string `json:"name"`
		Price int    `json:"price"`
	}

	tests := []struct {
		name   string
		method string
		args   []any
		id     message.CallID
		want   string
	}{
		{
			name:   "positional args",
			method: "searchProduct",
			args:   []any{"car", 10},
			id:     1,
			want:   `{"method":"searchProduct","params":["car",10],"id":1}`,
		},
		{
			name:   "no args",
			method: "ping",
			id:     7,
			want:   `{"method":"ping","params":[],"id":7}`,
		},
		{
			name:   "scalars",
			method: "mix",
			args:   []any{nil, true, false, int8(-3), uint16(4), 2.5, json.Number("12")},
			id:     2,
			want:   `{"method":"mix","params":[null,true,false,-3,4,2.5,12],"id":2}`,
		},
		{
			name:   "nested containers with sorted keys",
			method: "loadProduct",
			args: []any{map[string]any{
				"search_id": 5,
				"id":        "p-1",
				"tags":      []any{"a", map[string]any{"z": 1, "b": nil}},
			}},
			id:   3,
			want: `{"method":"loadProduct","params":[{"id":"p-1","search_id":5,"tags":["a",{"b":null,"z":1}]}],"id":3}`,
		},
		{
			name:   "raw and struct values",
			method: "save",
			args:   []any{json.RawMessage(`{"k":[1,2]}`), jx.Raw(`"x"`), product{Name: "car", Price: 10}},
			id:     4,
			want:   `{"method":"save","params":[{"k":[1,2]},"x",{"name":"car","price":10}],"id":4}`,
		},
		{
			name:   "escaped strings",
			method: "echo",
			args:   []any{"say \"hi\"\n"},
			id:     5,
			want:   `{"method":"echo","params":["say \"hi\"\n"],"id":5}`,
		},
		{
			name:   "same slice twice is not a cycle",
			method: "twice",
			args:   func() []any { s := []any{1}; return []any{s, s} }(),
			id:     6,
			want:   `{"method":"twice","params":[[1],[1]],"id":6}`,
		},
	}

	c := &JSONRPCCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.EncodeRequest(tc.method, tc.args, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeRequestErrors(t *testing.T) {
	cyclicSlice := []any{nil}
	cyclicSlice[0] = cyclicSlice

	cyclicMap := map[string]any{}
	cyclicMap["self"] = cyclicMap

	deep := []any{}
	for i := 0; i < maxDepth+1; i++ {
		deep = []any{deep}
	}

	tests := []struct {
		name   string
		method string
		args   []any
	}{
		{name: "empty method", method: "", args: nil},
		{name: "function", method: "m", args: []any{func() {}}},
		{name: "channel", method: "m", args: []any{make(chan int)}},
		{name: "complex", method: "m", args: []any{complex(1, 2)}},
		{name: "NaN", method: "m", args: []any{math.NaN()}},
		{name: "infinity", method: "m", args: []any{float32(math.Inf(1))}},
		{name: "cyclic slice", method: "m", args: []any{cyclicSlice}},
		{name: "cyclic map", method: "m", args: []any{cyclicMap}},
		{name: "too deep", method: "m", args: []any{deep}},
		{name: "function inside map", method: "m", args: []any{map[string]any{"f": func() {}}}},
		{name: "invalid raw", method: "m", args: []any{json.RawMessage(`{"a":`)}},
		{name: "number that is a string", method: "m", args: []any{json.Number(`"1"`)}},
		{name: "struct with function field", method: "m", args: []any{struct{ F func() }{F: func() {}}}},
	}

	c := &JSONRPCCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.EncodeRequest(tc.method, tc.args, 1)
			require.Error(t, err)
			assert.Empty(t, got)

			var encErr *EncodeError
			require.ErrorAs(t, err, &encErr)
			assert.Equal(t, tc.method, encErr.Method)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantID     message.CallID
		wantResult string
		wantError  string
	}{
		{name: "result", raw: `{"id":1,"result":"ok"}`, wantID: 1, wantResult: `"ok"`},
		{name: "error", raw: `{"id":1,"error":"bad"}`, wantID: 1, wantError: `"bad"`},
		{name: "1.0 success with null error", raw: `{"result":3,"error":null,"id":4}`, wantID: 4, wantResult: `3`},
		{name: "1.0 fault with null result", raw: `{"result":null,"error":{"code":1},"id":5}`, wantID: 5, wantError: `{"code":1}`},
		{name: "null result", raw: `{"result":null,"error":null,"id":6}`, wantID: 6, wantResult: `null`},
		{name: "whitespace", raw: " { \"id\" : 9 ,\n \"result\" : [1, 2] } ", wantID: 9, wantResult: `[1, 2]`},
		{name: "unknown members ignored", raw: `{"jsonrpc":"1.0","id":10,"result":{},"extra":[1]}`, wantID: 10, wantResult: `{}`},
	}

	c := &JSONRPCCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.DecodeResponse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, resp.ID)

			if tc.wantError != "" {
				assert.True(t, resp.IsFault())
				assert.Equal(t, tc.wantError, string(resp.Error))
				assert.Nil(t, resp.Result)
			} else {
				assert.False(t, resp.IsFault())
				assert.Equal(t, tc.wantResult, string(resp.Result))
			}
		})
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind DecodeErrorKind
	}{
		{name: "not JSON", raw: `hello`, kind: MalformedJSON},
		{name: "empty", raw: ``, kind: MalformedJSON},
		{name: "code is never evaluated", raw: `obj={"id":1,"result":alert(1)}`, kind: MalformedJSON},
		{name: "truncated", raw: `{"id":1,"result":`, kind: MalformedJSON},
		{name: "trailing data", raw: `{"id":1,"result":1} {}`, kind: MalformedJSON},
		{name: "array", raw: `[{"id":1,"result":1}]`, kind: MalformedJSON},
		{name: "string", raw: `"ok"`, kind: MalformedJSON},
		{name: "invalid UTF-8", raw: "{\"id\":1,\"result\":\"\xff\xfe\"}", kind: MalformedJSON},
		{name: "nested too deep", raw: `{"id":1,"result":` + strings.Repeat("[", 100000) + strings.Repeat("]", 100000) + `}`, kind: MalformedJSON},
		{name: "neither result nor error", raw: `{"foo":1}`, kind: MissingResult},
		{name: "only null error", raw: `{"id":1,"error":null}`, kind: MissingResult},
		{name: "both present", raw: `{"id":1,"result":1,"error":"bad"}`, kind: BothPresent},
		{name: "missing id", raw: `{"result":1}`, kind: MissingID},
		{name: "null id", raw: `{"result":1,"id":null}`, kind: MissingID},
		{name: "string id", raw: `{"result":1,"id":"1"}`, kind: MissingID},
		{name: "negative id", raw: `{"result":1,"id":-1}`, kind: MissingID},
		{name: "fractional id", raw: `{"result":1,"id":1.5}`, kind: MissingID},
	}

	c := &JSONRPCCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.DecodeResponse(tc.raw)
			require.Error(t, err)
			assert.Nil(t, resp)

			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tc.kind, decErr.Kind, err.Error())
		})
	}
}

// A well-formed {result, id} pair survives a trip through the wire text.
func TestDecodeRecoversResult(t *testing.T) {
	results := []any{
		"ok",
		int64(10),
		-2.75,
		true,
		nil,
		[]any{"car", int64(10), []any{}},
		map[string]any{"id": "p-1", "price": 9.5, "tags": []any{"a"}},
	}

	c := &JSONRPCCodec{}
	for i, want := range results {
		id := message.CallID(i + 1)

		var e jx.Encoder
		w := &valueWriter{e: &e}
		e.ObjStart()
		e.FieldStart("result")
		require.NoError(t, w.write(want))
		e.FieldStart("id")
		e.UInt64(uint64(id))
		e.ObjEnd()

		resp, err := c.DecodeResponse(string(e.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, id, resp.ID)

		got, err := Value(resp.Result)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestValue(t *testing.T) {
	got, err := Value(jx.Raw(`{"a":[1,2.5,"x",null,false],"b":{"c":9223372036854775807},"d":1e3}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": []any{int64(1), 2.5, "x", nil, false},
		"b": map[string]any{"c": int64(math.MaxInt64)},
		"d": float64(1000),
	}, got)

	got, err = Value(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Value(jx.Raw(`[1e400,-1e400]`))
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("1e400"), json.Number("-1e400")}, got)
}

func TestErrorMessages(t *testing.T) {
	err := &DecodeError{Kind: MissingID, Detail: `id "x" is not an integer`}
	assert.Equal(t, `codec: decode response: missing id: id "x" is not an integer`, err.Error())

	assert.Equal(t, "DecodeErrorKind(99)", DecodeErrorKind(99).String())

	encErr := &EncodeError{Method: "m", Reason: "method name is empty"}
	assert.Equal(t, `codec: encode "m": method name is empty`, encErr.Error())
}
