package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Div(args *Args, reply *Reply) error {
	if args.B == 0 {
		return &Error{Code: 1, Message: "divide by zero", Data: args.A}
	}
	reply.Result = args.A / args.B
	return nil
}

func (a *Arith) Sum(args *[]int, reply *int) error {
	for _, v := range *args {
		*reply += v
	}
	return nil
}

func (a *Arith) Crash(args *Args, reply *Reply) error {
	panic("boom")
}

// Not exported over RPC: wrong signature.
func (a *Arith) Helper() int { return 0 }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svr := NewServer(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Arith{}))
	ts := httptest.NewServer(svr)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, method, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(message.HeaderName, method)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServeHTTP(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
		want   string
	}{
		{
			name:   "struct args",
			method: "Arith.Add",
			body:   `{"method":"Arith.Add","params":[{"A":1,"B":2}],"id":1}`,
			status: http.StatusOK,
			want:   `{"id":1,"result":{"Result":3},"error":null}`,
		},
		{
			name:   "slice args take the whole array",
			method: "Arith.Sum",
			body:   `{"method":"Arith.Sum","params":[1,2,3,4],"id":7}`,
			status: http.StatusOK,
			want:   `{"id":7,"result":10,"error":null}`,
		},
		{
			name:   "structured fault",
			method: "Arith.Div",
			body:   `{"method":"Arith.Div","params":[{"A":4,"B":0}],"id":2}`,
			status: http.StatusOK,
			want:   `{"id":2,"result":null,"error":{"code":1,"message":"divide by zero","data":4}}`,
		},
		{
			name:   "header mismatch",
			method: "Arith.Div",
			body:   `{"method":"Arith.Add","params":[{"A":1,"B":2}],"id":3}`,
			status: http.StatusOK,
			want:   `{"id":3,"result":null,"error":{"message":"X-JSON-RPC header \"Arith.Div\" does not match method \"Arith.Add\""}}`,
		},
		{
			name:   "unknown method",
			method: "Arith.Mul",
			body:   `{"method":"Arith.Mul","params":[],"id":4}`,
			status: http.StatusOK,
			want:   `{"id":4,"result":null,"error":{"message":"unknown method Arith.Mul"}}`,
		},
		{
			name:   "unknown service",
			method: "Geo.Add",
			body:   `{"method":"Geo.Add","params":[],"id":5}`,
			status: http.StatusOK,
			want:   `{"id":5,"result":null,"error":{"message":"unknown service Geo"}}`,
		},
		{
			name:   "panic",
			method: "Arith.Crash",
			body:   `{"method":"Arith.Crash","params":[],"id":6}`,
			status: http.StatusOK,
			want:   `{"id":6,"result":null,"error":{"message":"internal error in Arith.Crash"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, ts.URL, tt.method, tt.body)
			assert.Equal(t, tt.status, status)
			assert.JSONEq(t, tt.want, body)
		})
	}
}

func TestServeHTTPBadRequests(t *testing.T) {
	ts := newTestServer(t)

	status, body := post(t, ts.URL, "Arith.Add", `{"method":"Arith.Add"`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "parse error")

	status, _ = post(t, ts.URL, "Arith.Add", `{"method":"Arith.Add","params":{"A":1},"id":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, ts.URL, "", `{"params":[],"id":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeHTTPNotification(t *testing.T) {
	ts := newTestServer(t)

	status, body := post(t, ts.URL, "Arith.Add", `{"method":"Arith.Add","params":[{"A":1,"B":2}],"id":null}`)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, body)
}

func TestRegister(t *testing.T) {
	svr := NewServer(nil)
	require.NoError(t, svr.Register(&Arith{}))
	assert.Error(t, svr.Register(&Arith{}), "duplicate name")
	require.NoError(t, svr.RegisterName("Calc", &Arith{}))
	assert.ElementsMatch(t, []string{"Arith", "Calc"}, svr.Services())

	assert.Error(t, svr.Register(Arith{}), "non-pointer receiver")
	assert.Error(t, svr.Register(new(int)), "pointer to non-struct")

	type Empty struct{}
	assert.Error(t, svr.Register(&Empty{}), "no rpc methods")
}

func TestServeAndShutdown(t *testing.T) {
	svr := NewServer(zaptest.NewLogger(t))
	require.NoError(t, svr.Register(&Arith{}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String()
	reg := registry.NewMemoryRegistry()

	done := make(chan error, 1)
	go func() { done <- svr.Serve(ln, url, reg, 0) }()

	ctx := context.Background()
	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(ctx, "Arith")
		return len(instances) == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"method":"Arith.Add","params":[{"A":2,"B":2}],"id":1}`))
		req.Header.Set(message.HeaderName, "Arith.Add")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, svr.Shutdown(shutdownCtx))
	require.NoError(t, <-done)

	instances, err := reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
